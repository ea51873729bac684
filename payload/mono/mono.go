//go:build linux || darwin

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package mono implements payload.Runtime on the Mono embedding API of the
// runtime already loaded into the editor process.
package mono // import "github.com/cls-tools/consolelogsaver/payload/mono"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/cls-tools/consolelogsaver/payload"
)

// api holds the bound embedding functions. Pointers are passed as uintptr.
type api struct {
	domainGet         func() uintptr
	assemblyNameNew   func(name string) uintptr
	assemblyNameFree  func(name uintptr)
	assemblyLoaded    func(name uintptr) uintptr
	assemblyGetImage  func(assembly uintptr) uintptr
	classFromName     func(image uintptr, namespace, name string) uintptr
	classGetField     func(class uintptr, name string) uintptr
	classGetProperty  func(class uintptr, name string) uintptr
	propertyGetGet    func(prop uintptr) uintptr
	methodDescNew     func(desc string, includeNamespace int32) uintptr
	methodDescFree    func(desc uintptr)
	methodDescSearch  func(desc, class uintptr) uintptr
	objectNew         func(domain, class uintptr) uintptr
	runtimeObjectInit func(obj uintptr)
	runtimeInvoke     func(method, obj uintptr, params, exc unsafe.Pointer) uintptr
	objectToString    func(obj uintptr, exc unsafe.Pointer) uintptr
	objectUnbox       func(obj uintptr) unsafe.Pointer
	fieldGetValue     func(obj, field uintptr, value unsafe.Pointer)
	stringChars       func(str uintptr) unsafe.Pointer
	stringLength      func(str uintptr) int32
	gchandleNew       func(obj uintptr, pinned int32) uint32
	gchandleFree      func(handle uint32)
}

// Runtime is a payload.Runtime bound to a loaded Mono library.
type Runtime struct {
	api     api
	domain  uintptr
	images  map[string]uintptr
	handles []uint32
}

var _ payload.Runtime = (*Runtime)(nil)

// Open binds the Mono library named lib, which is normally already loaded
// into the process, and attaches to its current domain.
func Open(lib string) (*Runtime, error) {
	if lib == "" {
		lib = DefaultLibrary
	}
	handle, err := purego.Dlopen(lib, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", lib, err)
	}
	r := &Runtime{images: map[string]uintptr{}}
	a := &r.api
	for _, fn := range []struct {
		ptr  any
		name string
	}{
		{&a.domainGet, "mono_domain_get"},
		{&a.assemblyNameNew, "mono_assembly_name_new"},
		{&a.assemblyNameFree, "mono_assembly_name_free"},
		{&a.assemblyLoaded, "mono_assembly_loaded"},
		{&a.assemblyGetImage, "mono_assembly_get_image"},
		{&a.classFromName, "mono_class_from_name"},
		{&a.classGetField, "mono_class_get_field_from_name"},
		{&a.classGetProperty, "mono_class_get_property_from_name"},
		{&a.propertyGetGet, "mono_property_get_get_method"},
		{&a.methodDescNew, "mono_method_desc_new"},
		{&a.methodDescFree, "mono_method_desc_free"},
		{&a.methodDescSearch, "mono_method_desc_search_in_class"},
		{&a.objectNew, "mono_object_new"},
		{&a.runtimeObjectInit, "mono_runtime_object_init"},
		{&a.runtimeInvoke, "mono_runtime_invoke"},
		{&a.objectToString, "mono_object_to_string"},
		{&a.objectUnbox, "mono_object_unbox"},
		{&a.fieldGetValue, "mono_field_get_value"},
		{&a.stringChars, "mono_string_chars"},
		{&a.stringLength, "mono_string_length"},
		{&a.gchandleNew, "mono_gchandle_new"},
		{&a.gchandleFree, "mono_gchandle_free"},
	} {
		if _, err := purego.Dlsym(handle, fn.name); err != nil {
			return nil, fmt.Errorf("%s: %w", fn.name, err)
		}
		purego.RegisterLibFunc(fn.ptr, handle, fn.name)
	}
	r.domain = a.domainGet()
	if r.domain == 0 {
		return nil, fmt.Errorf("no current Mono domain")
	}
	return r, nil
}

func (r *Runtime) image(assembly string) (uintptr, error) {
	if img, ok := r.images[assembly]; ok {
		return img, nil
	}
	name := r.api.assemblyNameNew(assembly)
	if name == 0 {
		return 0, fmt.Errorf("assembly name %q: %w", assembly, payload.ErrNotFound)
	}
	defer r.api.assemblyNameFree(name)
	asm := r.api.assemblyLoaded(name)
	if asm == 0 {
		return 0, fmt.Errorf("assembly %s: %w", assembly, payload.ErrNotFound)
	}
	img := r.api.assemblyGetImage(asm)
	r.images[assembly] = img
	return img, nil
}

func (r *Runtime) ResolveClass(assembly, namespace, name string) (payload.Class, error) {
	img, err := r.image(assembly)
	if err != nil {
		return 0, err
	}
	cls := r.api.classFromName(img, namespace, name)
	if cls == 0 {
		return 0, payload.ErrNotFound
	}
	return payload.Class(cls), nil
}

func (r *Runtime) ResolveMethod(class payload.Class, desc string) (payload.Method, error) {
	d := r.api.methodDescNew(desc, 1)
	if d == 0 {
		return 0, fmt.Errorf("invalid method description %q", desc)
	}
	defer r.api.methodDescFree(d)
	m := r.api.methodDescSearch(d, uintptr(class))
	if m == 0 {
		return 0, payload.ErrNotFound
	}
	return payload.Method(m), nil
}

func (r *Runtime) ResolveGetter(class payload.Class, property string) (payload.Method, error) {
	prop := r.api.classGetProperty(uintptr(class), property)
	if prop == 0 {
		return 0, payload.ErrNotFound
	}
	get := r.api.propertyGetGet(prop)
	if get == 0 {
		return 0, fmt.Errorf("property %s has no getter", property)
	}
	return payload.Method(get), nil
}

func (r *Runtime) ResolveField(class payload.Class, name string) (payload.Field, error) {
	f := r.api.classGetField(uintptr(class), name)
	if f == 0 {
		return 0, payload.ErrNotFound
	}
	return payload.Field(f), nil
}

func (r *Runtime) NewObject(class payload.Class) (payload.Object, error) {
	obj := r.api.objectNew(r.domain, uintptr(class))
	if obj == 0 {
		return 0, fmt.Errorf("allocation failed")
	}
	// The collector does not scan Go stacks; keep the object alive until
	// Release.
	r.handles = append(r.handles, r.api.gchandleNew(obj, 1))
	r.api.runtimeObjectInit(obj)
	return payload.Object(obj), nil
}

// Release drops the objects created by NewObject.
func (r *Runtime) Release() {
	for _, h := range r.handles {
		r.api.gchandleFree(h)
	}
	r.handles = r.handles[:0]
}

// exception turns a thrown managed exception into an error.
func (r *Runtime) exception(exc uintptr) error {
	if exc == 0 {
		return nil
	}
	var msg string
	if s := r.api.objectToString(exc, nil); s != 0 {
		if chars, err := r.Chars(payload.Object(s)); err == nil {
			msg = decode(chars)
		}
	}
	return &ManagedException{Message: msg}
}

func (r *Runtime) Invoke(method payload.Method, this payload.Object, args ...any) (payload.Object, error) {
	var pinner runtime.Pinner
	defer pinner.Unpin()

	var params unsafe.Pointer
	if len(args) > 0 {
		ptrs := make([]uintptr, len(args))
		for i, arg := range args {
			switch v := arg.(type) {
			case int32:
				p := new(int32)
				*p = v
				pinner.Pin(p)
				ptrs[i] = uintptr(unsafe.Pointer(p))
			case payload.Object:
				ptrs[i] = uintptr(v)
			default:
				return 0, fmt.Errorf("unsupported argument type %T", arg)
			}
		}
		pinner.Pin(&ptrs[0])
		params = unsafe.Pointer(&ptrs[0])
	}
	var exc uintptr
	pinner.Pin(&exc)
	res := r.api.runtimeInvoke(uintptr(method), uintptr(this), params, unsafe.Pointer(&exc))
	if err := r.exception(exc); err != nil {
		return 0, err
	}
	return payload.Object(res), nil
}

func (r *Runtime) UnboxInt32(obj payload.Object) (int32, error) {
	if obj == 0 {
		return 0, fmt.Errorf("unbox of null")
	}
	return *(*int32)(r.api.objectUnbox(uintptr(obj))), nil
}

func (r *Runtime) FieldObject(obj payload.Object, field payload.Field) (payload.Object, error) {
	if obj == 0 {
		return 0, fmt.Errorf("field of null")
	}
	var out uintptr
	r.api.fieldGetValue(uintptr(obj), uintptr(field), unsafe.Pointer(&out))
	return payload.Object(out), nil
}

func (r *Runtime) FieldInt32(obj payload.Object, field payload.Field) (int32, error) {
	if obj == 0 {
		return 0, fmt.Errorf("field of null")
	}
	var out int32
	r.api.fieldGetValue(uintptr(obj), uintptr(field), unsafe.Pointer(&out))
	return out, nil
}

func (r *Runtime) ToString(obj payload.Object) (payload.Object, error) {
	if obj == 0 {
		return 0, fmt.Errorf("ToString of null")
	}
	var exc uintptr
	s := r.api.objectToString(uintptr(obj), unsafe.Pointer(&exc))
	if err := r.exception(exc); err != nil {
		return 0, err
	}
	return payload.Object(s), nil
}

func (r *Runtime) Chars(str payload.Object) ([]uint16, error) {
	if str == 0 {
		return nil, nil
	}
	n := r.api.stringLength(uintptr(str))
	if n <= 0 {
		return []uint16{}, nil
	}
	chars := unsafe.Slice((*uint16)(r.api.stringChars(uintptr(str))), n)
	return append([]uint16(nil), chars...), nil
}
