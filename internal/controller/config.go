// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "github.com/cls-tools/consolelogsaver/internal/controller"

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/redact"
	"github.com/cls-tools/consolelogsaver/remote"
)

type Config struct {
	PID            libpf.PID
	PayloadPath    string
	PayloadSHA256  string
	InjectStrategy string
	SyncModule     string
	SyncSymbol     string
	Output         string

	HideUserName           bool
	HideUserHome           bool
	HideOSInfo             bool
	HideAWSUploadSignature bool

	CheckUpdate bool
	VerboseMode bool
	Version     bool

	Fs *flag.FlagSet
}

// Dump visits all flag sets, and dumps them all to debug
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	if cfg.Fs == nil {
		return
	}
	log.Debug("Config:")
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debugf("%s: %v", f.Name, f.Value)
	})
}

// Validate runs validations on the provided configuration, and returns errors
// if invalid values were provided.
func (cfg *Config) Validate() error {
	if cfg.PID > math.MaxInt32 {
		return fmt.Errorf("invalid process ID %d", cfg.PID)
	}
	if _, err := remote.ParseStrategy(cfg.InjectStrategy); err != nil {
		return err
	}
	if cfg.PayloadSHA256 != "" {
		sum, err := hex.DecodeString(cfg.PayloadSHA256)
		if err != nil || len(sum) != 32 {
			return errors.New("payload-sha256 must be 64 hexadecimal digits")
		}
	}
	return nil
}

// redactConfig returns the filters selected by the hide options.
func (cfg *Config) redactConfig() redact.Config {
	return redact.Config{
		HideUserName:           cfg.HideUserName,
		HideUserHome:           cfg.HideUserHome,
		HideAWSUploadSignature: cfg.HideAWSUploadSignature,
	}
}

// syncPoint returns the configured sync point. Empty fields keep the defaults.
func (cfg *Config) syncPoint() remote.SyncPoint {
	return remote.SyncPoint{
		ModuleFilter:  cfg.SyncModule,
		SymbolPattern: cfg.SyncSymbol,
	}
}
