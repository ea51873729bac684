// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// consolelogsaver saves the console log of a running Unity editor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/internal/controller"
	"github.com/cls-tools/consolelogsaver/vc"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// newRootCmd builds the command tree. The root command saves, so that a bare
// invocation behaves like "save".
func newRootCmd(cfg *controller.Config, ctlr func() *controller.Controller) *ffcli.Command {
	fs := newFlagSet(cfg)
	save := func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unexpected arguments %q", args)
		}
		return ctlr().Save(ctx)
	}

	return &ffcli.Command{
		Name:       "consolelogsaver",
		ShortUsage: "consolelogsaver [flags] [save|list]",
		ShortHelp:  "Save the console log of a running Unity editor",
		FlagSet:    fs,
		Options:    parseOptions,
		Subcommands: []*ffcli.Command{
			{
				Name:       "save",
				ShortUsage: "consolelogsaver [flags] save",
				ShortHelp:  "Save the console log (default)",
				Exec:       save,
			},
			{
				Name:       "list",
				ShortUsage: "consolelogsaver [flags] list",
				ShortHelp:  "List running Unity editors",
				Exec: func(ctx context.Context, _ []string) error {
					return ctlr().List(ctx)
				},
			},
		},
		Exec: save,
	}
}

func run(argv []string) int {
	var cfg controller.Config
	var ctlr *controller.Controller
	root := newRootCmd(&cfg, func() *controller.Controller { return ctlr })

	if err := root.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return controller.ExitSuccess
		}
		log.Errorf("Failure to parse arguments: %v", err)
		return controller.ExitParseError
	}

	if cfg.Version {
		fmt.Printf("%s\n", vc.Version())
		return controller.ExitSuccess
	}

	if cfg.VerboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		cfg.Dump()
	}

	// Cancelling stops the session at the next phase boundary. The editor is
	// always resumed and detached.
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctlr = controller.New(&cfg)
	log.Debugf("ConsoleLogSaver %s (revision %s)", vc.Version(), vc.Revision())
	if err := root.Run(ctx); err != nil {
		log.Errorf("%v", err)
		return controller.ExitCode(err)
	}
	return controller.ExitSuccess
}
