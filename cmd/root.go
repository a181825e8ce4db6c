// Package cmd implements the insservgo command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"insservgo/engine"
	"insservgo/logging"
	"insservgo/runlevel"
	"insservgo/watch"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Flags bound to the root command.
var (
	flagRemove   bool
	flagForce    bool
	flagDefault  bool
	flagVerbose  bool
	flagDryRun   bool
	flagPath     string
	flagOverride string
	flagConfig   string
	flagWatch    bool
	flagDebug    bool
	flagLog      string
	flagDialect  string
)

var rootCmd = &cobra.Command{
	Use:   "insservgo [options] [script...] [start=service,...] [stop=service,...]",
	Short: "dependency-based init script link-farm resolver",
	Long: `insservgo computes the start and stop order for SysV init scripts
from their LSB dependency headers and reconciles the S/K symlink farm in
each runlevel directory to match.

Positional arguments name the scripts to enroll. Two special tokens,
start=<names> and stop=<names>, restrict enrollment to only the named
facet instead of both.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
	RunE: runRoot,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagRemove, "remove", "r", false, "remove the named scripts instead of enrolling them")
	rootCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "continue past non-fatal validation problems")
	rootCmd.Flags().BoolVarP(&flagDefault, "default", "d", false, "reset to the Default-Start/Default-Stop runlevels declared by each script")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose (info-level) logging")
	rootCmd.Flags().BoolVarP(&flagDryRun, "dryrun", "n", false, "compute the plan but make no filesystem changes")
	rootCmd.Flags().StringVarP(&flagPath, "path", "p", "/etc/init.d", "init script directory")
	rootCmd.Flags().StringVarP(&flagOverride, "override", "o", "", "directory of per-script header overrides")
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "/etc/insserv.conf", "facility group and interactive configuration file")
	rootCmd.Flags().BoolVar(&flagWatch, "watch", false, "re-run automatically whenever a script changes (supplemental)")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging regardless of --verbose")
	rootCmd.Flags().StringVar(&flagLog, "log", "", "write logs to this file instead of stderr")
	rootCmd.Flags().StringVar(&flagDialect, "dialect", "", "force the runlevel dialect (suse or debian); auto-detected by default")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func setupLogging() {
	logOutput := os.Stderr
	if flagLog != "" {
		f, err := os.OpenFile(flagLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			logOutput = f
		}
	}

	// -n/--dryrun implies -v/--verbose.
	if flagDryRun {
		flagVerbose = true
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelInfo
	}
	if flagDebug {
		level = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Format: "text",
		Output: logOutput,
	})
	logging.SetDefault(logger)
}

func runRoot(cmd *cobra.Command, args []string) error {
	scripts, startOnly, stopOnly := splitPositional(args)

	req := engine.Request{
		InitDir:     flagPath,
		ConfigPath:  flagConfig,
		OverrideDir: flagOverride,
		Scripts:     scripts,
		Remove:      flagRemove,
		Force:       flagForce,
		DryRun:      flagDryRun,
	}
	// -d/--default ignores any start=/stop= facet restriction and enrolls
	// every named script for both its start and stop runlevels.
	if !flagDefault {
		req.StartOnly = startOnly
		req.StopOnly = stopOnly
	}
	if flagDialect != "" {
		d, err := parseDialect(flagDialect)
		if err != nil {
			return err
		}
		req.Dialect = &d
	}

	if flagWatch {
		ctx := GetContext()
		return watch.Run(ctx, req, func(res *engine.Result, err error) {
			reportResult(res, err)
		})
	}

	res, err := engine.Run(req)
	reportResult(res, err)
	return err
}

func parseDialect(name string) (runlevel.Dialect, error) {
	switch strings.ToLower(name) {
	case "suse":
		return runlevel.DialectSUSE, nil
	case "debian":
		return runlevel.DialectDebian, nil
	default:
		return 0, fmt.Errorf("unknown dialect %q: expected suse or debian", name)
	}
}

// splitPositional separates the positional argument list into plain script
// names and the optional "start=" / "stop=" restriction tokens.
func splitPositional(args []string) (scripts, startOnly, stopOnly []string) {
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "start="):
			startOnly = append(startOnly, strings.Split(strings.TrimPrefix(a, "start="), ",")...)
		case strings.HasPrefix(a, "stop="):
			stopOnly = append(stopOnly, strings.Split(strings.TrimPrefix(a, "stop="), ",")...)
		default:
			scripts = append(scripts, a)
		}
	}
	return scripts, startOnly, stopOnly
}

func reportResult(res *engine.Result, err error) {
	if res == nil {
		return
	}
	for _, w := range res.Warnings {
		logging.Warn(w)
	}
	if res.Reconcile != nil && flagVerbose {
		for _, a := range res.Reconcile.Actions {
			logging.Info("reconcile", "runlevel", a.Runlevel, "action", a.Kind, "link", a.Link)
		}
	}
	if err != nil {
		logging.Error("run failed", "error", err)
	}
}
