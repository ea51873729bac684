// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "github.com/cls-tools/consolelogsaver/internal/controller"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/clsfile"
	"github.com/cls-tools/consolelogsaver/debugger"
	"github.com/cls-tools/consolelogsaver/discovery"
	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/payloadfile"
	"github.com/cls-tools/consolelogsaver/redact"
	"github.com/cls-tools/consolelogsaver/remote"
	"github.com/cls-tools/consolelogsaver/updatecheck"
	"github.com/cls-tools/consolelogsaver/vc"
)

// ErrNoEditor is returned when no -pid is given and no editor is running.
var ErrNoEditor = errors.New("no Unity editor found")

// Controller runs the commands of the CLI.
type Controller struct {
	config      *Config
	debugger    remote.Debugger
	findEditors func(context.Context) ([]discovery.Editor, error)
	updates     *updatecheck.Checker
	stdout      io.Writer
}

// New creates a new controller
func New(cfg *Config, opts ...Option) *Controller {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Controller{
		config:      cfg,
		debugger:    debugger.Ptrace{},
		findEditors: discovery.Find,
		updates:     &updatecheck.Checker{},
		stdout:      os.Stdout,
	}
	for _, opt := range opts {
		c = opt.applyOption(c)
	}
	return c
}

// Vendor identifies this tool in saved documents.
func Vendor() string {
	return fmt.Sprintf("ConsoleLogSaver/%s (CLS-GO)", vc.Version())
}

// selectPID returns the configured process or the first running editor.
func (c *Controller) selectPID(ctx context.Context) (libpf.PID, error) {
	if c.config.PID != 0 {
		return c.config.PID, nil
	}
	editors, err := c.findEditors(ctx)
	if err != nil {
		return 0, withExitCode(fmt.Errorf("failed to list processes: %w", err), ExitFailure)
	}
	if len(editors) == 0 {
		return 0, withExitCode(ErrNoEditor, ExitNoEditor)
	}
	ed := editors[0]
	if len(editors) > 1 {
		log.Warnf("Multiple Unity editors found, using %d for %s", ed.PID, ed.ProjectPath)
	}
	return ed.PID, nil
}

// startUpdateCheck runs the update check concurrently with the extraction.
// The returned function waits for the check and logs its outcome.
func (c *Controller) startUpdateCheck(ctx context.Context) func() {
	if !c.config.CheckUpdate {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := c.updates.Check(ctx, vc.Version())
		switch {
		case err != nil:
			log.Debugf("Update check failed: %v", err)
		case res.Outdated:
			log.Warnf("ConsoleLogSaver %s is available (running %s)", res.Latest, vc.Version())
		default:
			log.Debugf("ConsoleLogSaver is up to date (latest %s)", res.Latest)
		}
	}()
	return func() {
		<-done
		cancel()
	}
}

// stagePayload copies the payload module to a private temporary file.
func (c *Controller) stagePayload() (*payloadfile.File, error) {
	src := c.config.PayloadPath
	if src == "" {
		var err error
		if src, err = payloadfile.Locate(); err != nil {
			return nil, fmt.Errorf("no -payload given: %w", err)
		}
	}
	return payloadfile.Stage(src, c.config.PayloadSHA256)
}

// Save extracts the console of an editor and writes it as a document.
func (c *Controller) Save(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return withExitCode(err, ExitParseError)
	}
	defer c.startUpdateCheck(ctx)()

	strategy, _ := remote.ParseStrategy(c.config.InjectStrategy)
	redactor, err := redact.New(c.config.redactConfig())
	if err != nil {
		return withExitCode(err, ExitFailure)
	}

	pid, err := c.selectPID(ctx)
	if err != nil {
		return err
	}

	payload, err := c.stagePayload()
	if err != nil {
		return withExitCode(err, ExitInjection)
	}
	defer func() {
		if err := payload.Remove(); err != nil {
			log.Warnf("Failed to remove %s: %v", payload.Path, err)
		}
	}()

	log.Debugf("Extracting console of PID %d", pid)
	res, err := remote.Extract(ctx, c.debugger, pid, remote.Options{
		PayloadPath: payload.Path,
		Strategy:    strategy,
		SyncPoint:   c.config.syncPoint(),
	})
	if err != nil {
		return withExitCode(fmt.Errorf("failed to save console log of PID %d: %w", pid, err),
			exitCodeOf(err))
	}
	log.Debugf("Session of PID %d ended %s", pid, res.FinalState)

	doc, err := clsfile.Render(res.Document, clsfile.Options{
		Vendor:     Vendor(),
		HideOSInfo: c.config.HideOSInfo,
		Redactor:   redactor,
	})
	if err != nil {
		return withExitCode(err, ExitFailure)
	}
	return withExitCode(c.writeOutput(doc), ExitFailure)
}

func (c *Controller) writeOutput(doc string) error {
	if c.config.Output == "" || c.config.Output == "-" {
		_, err := io.WriteString(c.stdout, doc)
		return err
	}
	if err := os.WriteFile(c.config.Output, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.config.Output, err)
	}
	log.Infof("Saved console log to %s", c.config.Output)
	return nil
}

// List prints the running editors.
func (c *Controller) List(ctx context.Context) error {
	editors, err := c.findEditors(ctx)
	if err != nil {
		return withExitCode(fmt.Errorf("failed to list processes: %w", err), ExitFailure)
	}

	if f, ok := c.stdout.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		for _, ed := range editors {
			if _, err := fmt.Fprintf(c.stdout, "%d\t%s\n", ed.PID, ed.ProjectPath); err != nil {
				return err
			}
		}
		return nil
	}

	table := tablewriter.NewWriter(c.stdout)
	table.Header("PID", "Project")
	for _, ed := range editors {
		if err := table.Append(ed.PID.String(), ed.ProjectPath); err != nil {
			return err
		}
	}
	return table.Render()
}
