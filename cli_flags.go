// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"

	"github.com/cls-tools/consolelogsaver/internal/controller"
	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/remote"
)

const (
	// Default values for CLI flags
	defaultHideUserName           = true
	defaultHideUserHome           = true
	defaultHideOSInfo             = false
	defaultHideAWSUploadSignature = true

	envVarPrefix = "CLS"
)

// Help strings for command line arguments
var (
	pidHelp = "Process ID of the Unity editor. " +
		"If unset, the first running editor with an open project is used."
	payloadHelp = "Path of the payload library loaded into the editor. " +
		"A .zst suffix marks a zstd compressed library. " +
		"If unset, the library next to this executable is used."
	payloadSHA256Help  = "Expected SHA-256 digest of the (decompressed) payload library."
	injectStrategyHelp = "How the payload is loaded: auto, direct or manual."
	syncModuleHelp     = fmt.Sprintf("Substring of the module file name holding the sync point. "+
		"Default is %q.", remote.DefaultSyncPoint.ModuleFilter)
	syncSymbolHelp = fmt.Sprintf("Substring of the demangled sync point function name. "+
		"Default is %q.", remote.DefaultSyncPoint.SymbolPattern)
	hideUserNameHelp           = "Replace the user name in log messages."
	hideUserHomeHelp           = "Replace the home directory in log messages."
	hideOSInfoHelp             = "Omit the operating system description."
	hideAWSUploadSignatureHelp = "Replace the Signature parameter of upload URLs."
	outputHelp                 = "Write the document to this file instead of standard output."
	checkUpdateHelp            = "Check for a newer release while saving."
	verboseModeHelp            = "Enable verbose logging."
	versionHelp                = "Show version."
)

// pidValue is a flag.Value holding a process ID.
type pidValue libpf.PID

func (p *pidValue) String() string {
	return libpf.PID(*p).String()
}

func (p *pidValue) Set(s string) error {
	pid, err := libpf.ParsePID(s)
	if err != nil {
		return err
	}
	*p = pidValue(pid)
	return nil
}

func newFlagSet(args *controller.Config) *flag.FlagSet {
	fs := flag.NewFlagSet("consolelogsaver", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.BoolVar(&args.CheckUpdate, "check-update", false, checkUpdateHelp)

	fs.BoolVar(&args.HideAWSUploadSignature, "hide-aws-upload-signature",
		defaultHideAWSUploadSignature, hideAWSUploadSignatureHelp)
	fs.BoolVar(&args.HideOSInfo, "hide-os-info", defaultHideOSInfo, hideOSInfoHelp)
	fs.BoolVar(&args.HideUserHome, "hide-user-home", defaultHideUserHome, hideUserHomeHelp)
	fs.BoolVar(&args.HideUserName, "hide-user-name", defaultHideUserName, hideUserNameHelp)

	fs.StringVar(&args.InjectStrategy, "inject-strategy", "auto", injectStrategyHelp)

	fs.StringVar(&args.Output, "o", "", "Shorthand for -output.")
	fs.StringVar(&args.Output, "output", "", outputHelp)

	fs.StringVar(&args.PayloadPath, "payload", "", payloadHelp)
	fs.StringVar(&args.PayloadSHA256, "payload-sha256", "", payloadSHA256Help)
	fs.Var((*pidValue)(&args.PID), "pid", pidHelp)

	fs.StringVar(&args.SyncModule, "sync-module", "", syncModuleHelp)
	fs.StringVar(&args.SyncSymbol, "sync-symbol", "", syncSymbolHelp)

	fs.BoolVar(&args.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.VerboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.Version, "version", false, versionHelp)

	// Unused by flag parsing, ff reads the file named by it.
	fs.String("config", "", "Path of a configuration `file` with one flag and its value per line.")

	args.Fs = fs
	return fs
}

// parseOptions are shared by all commands so that flags, CLS_ environment
// variables and the configuration file apply the same way.
var parseOptions = []ff.Option{
	ff.WithEnvVarPrefix(envVarPrefix),
	ff.WithConfigFileFlag("config"),
	ff.WithConfigFileParser(ff.PlainParser),
	ff.WithAllowMissingConfigFile(true),
}
