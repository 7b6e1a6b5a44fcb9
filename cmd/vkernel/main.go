package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/loredeck/vkernel/device"
	"github.com/loredeck/vkernel/entity"
	"github.com/loredeck/vkernel/invariant"
	"github.com/loredeck/vkernel/kernel"
	"github.com/loredeck/vkernel/mq"
	"github.com/loredeck/vkernel/plugin"
	"github.com/loredeck/vkernel/signal"
	"github.com/loredeck/vkernel/vfs"
)

func main() {
	var (
		storePath   = flag.String("store", "", "Path to sqlite snapshot file (default: in-memory)")
		mode        = flag.String("mode", "", "Kernel mode: debug or production")
		fdCeiling   = flag.Int("fd-ceiling", 0, "Open-descriptor ceiling")
		interactive = flag.Bool("i", false, "Interactive shell")
		quiet       = flag.Bool("quiet", false, "Suppress kernel logs")
	)
	flag.Parse()

	cfg, err := env.ParseAsWithOptions[kernel.Config](env.Options{Prefix: "VKERNEL_"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// Flags win over environment.
	if *storePath != "" {
		cfg.StorePath = *storePath
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *fdCeiling > 0 {
		cfg.FdCeiling = *fdCeiling
	}
	if cfg.Mode != kernel.ModeDebug && cfg.Mode != kernel.ModeProduction {
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q\n", cfg.Mode)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Mode, *quiet || *interactive)
	defer func() { _ = logger.Sync() }()
	pushLoggers(logger)

	k, err := kernel.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			_ = k.Shutdown()
			os.Exit(1)
		}
		err := runInteractive(k)
		if serr := k.Shutdown(); err == nil {
			err = serr
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	printSummary(k)
	if err := k.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildLogger creates the process logger: development encoding in
// debug mode, JSON in production. The interactive shell owns the
// terminal, so logs are silenced there.
func buildLogger(mode string, quiet bool) *zap.Logger {
	if quiet {
		return zap.NewNop()
	}
	var (
		logger *zap.Logger
		err    error
	)
	if mode == kernel.ModeProduction {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// pushLoggers hands the process logger to every kernel package.
func pushLoggers(l *zap.Logger) {
	invariant.SetLogger(l.Named("invariant"))
	vfs.SetLogger(l.Named("vfs"))
	device.SetLogger(l.Named("device"))
	signal.SetLogger(l.Named("signal"))
	mq.SetLogger(l.Named("mq"))
	plugin.SetLogger(l.Named("plugin"))
	entity.SetLogger(l.Named("entity"))
	kernel.SetLogger(l.Named("kernel"))
}

func printSummary(k *kernel.Kernel) {
	meta := k.Metadata()
	fmt.Printf("vkernel\n")
	fmt.Printf("Format version: %d\n", meta.FormatVersion)
	fmt.Printf("Created: %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Boots: %d\n", meta.MountCount)

	fmt.Printf("\nMounts:\n")
	for _, mp := range k.Mounts() {
		fmt.Printf("  %-16s %s v%s\n", mp.Path, mp.ID, mp.Version)
	}

	fmt.Printf("\nNamespace:\n")
	ents, err := k.Readdir("/")
	if err != nil {
		fmt.Printf("  (unreadable: %v)\n", err)
		return
	}
	for _, ent := range ents {
		fmt.Printf("  /%s (%s)\n", ent.Name, ent.Type)
	}
	fmt.Printf("\nUse -i for the interactive shell.\n")
}
