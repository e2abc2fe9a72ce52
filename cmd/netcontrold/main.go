// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command netcontrold is the netcontrol IPv4 traffic-accounting agent: it
// parses a policy file, programs nftables accounting/block rules from it,
// and enforces data and time quotas until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/nftables"

	"github.com/matislovas/netcontrol-go/internal/controller"
	"github.com/matislovas/netcontrol-go/internal/logging"
	"github.com/matislovas/netcontrol-go/internal/runtimeconfig"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("netcontrold", flag.ContinueOnError)
	configPath := fs.String("config", "", "Policy file path (required)")
	logPath := fs.String("log", "", "Log file path")
	table := fs.String("table", "", "nftables table name override")
	silent := fs.Bool("silent", false, "No output to stdout")
	var verbosity int
	fs.BoolFunc("v", "Log verbosity, repeat for more detail (v, vv, vvv)", func(string) error {
		verbosity++
		return nil
	})

	// Expand -vv/-vvv into repeated -v so each one is counted.
	var expanded []string
	for _, a := range args {
		if len(a) > 2 && a[0] == '-' && strings.Trim(a[1:], "v") == "" {
			for range a[1:] {
				expanded = append(expanded, "-v")
			}
			continue
		}
		expanded = append(expanded, a)
	}

	if err := fs.Parse(expanded); err != nil {
		return 1
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "netcontrol: --config is required")
		return 1
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = verbosityToLevel(verbosity)
	logCfg.Silent = *silent
	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "netcontrol: opening log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logCfg.Output = f
	}
	logger := logging.New(logCfg)
	logging.SetDefault(logger)

	logger.Info("starting netcontrol")

	conn, err := nftables.New()
	if err != nil {
		logger.Error("failed to open netlink connection", "error", err)
		return 1
	}

	cfg := runtimeconfig.DefaultConfig()
	cfg.PolicyPath = *configPath
	cfg.LogPath = *logPath
	cfg.Silent = *silent
	cfg.LogLevel = logCfg.Level
	if *table != "" {
		cfg.TableName = *table
	}

	ctrl := controller.New(logger)
	if err := ctrl.Run(context.Background(), conn, cfg); err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}

	logger.Info("stopped")
	return 0
}

func verbosityToLevel(v int) logging.Level {
	switch {
	case v >= 3:
		return logging.LevelTrace
	case v == 2:
		return logging.LevelDebug
	case v == 1:
		return logging.LevelInfo
	default:
		return logging.LevelWarn
	}
}
