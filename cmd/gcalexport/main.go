package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"gcalexport/internal/config"
	"gcalexport/internal/export"
	appLog "gcalexport/internal/log"
	"gcalexport/internal/scheduler"
	"gcalexport/internal/source"
	"gcalexport/internal/web"
)

const version = "0.1.0"

var errUsage = errors.New("usage")

// flagConfig holds CLI flag values. Empty strings mean "not set".
type flagConfig struct {
	configPath string
	calendar   string
	from       string
	to         string
	out        string
	listen     string
	logLevel   string
	serve      bool
	fold       bool
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		appLog.Error("gcalexport failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	level := flags.logLevel
	if level == "" {
		level = os.Getenv("GCALEXPORT_LOG_LEVEL")
	}
	lvl, err := appLog.ParseLevel(level)
	if err != nil {
		return err
	}
	appLog.SetLevel(lvl)

	appLog.Debug("gcalexport starting", "version", version)

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	appLog.Info("effective config",
		"calendar", cfg.Calendar,
		"export_filename", cfg.ExportFilename,
		"date_start", cfg.DateStart,
		"date_end", cfg.DateEnd,
		"timezone", cfg.Timezone,
		"fold_lines", cfg.FoldLines,
		"source_count", len(cfg.Sources),
		"serve", flags.serve,
	)

	loader := source.NewLoader()
	reg, err := source.FromConfig(cfg, loader)
	if err != nil {
		return err
	}
	exporter := export.New(reg, export.OptionsFromConfig(cfg)...)

	if flags.serve {
		return serve(ctx, cfg, reg, exporter, loader)
	}
	return exportOnce(ctx, cfg, exporter, stdout)
}

// exportOnce writes the configured range to cfg.ExportFilename.
func exportOnce(ctx context.Context, cfg *config.Config, exporter *export.Exporter, stdout io.Writer) error {
	rng, err := cfg.ResolveRange(time.Now())
	if err != nil {
		return err
	}
	if rng.TooLong() {
		appLog.Warn("export range is unusually long", "range", rng.String(), "days", rng.Days())
	}

	n, err := exporter.ExportFile(ctx, cfg.ExportFilename, export.Query(rng, cfg.Calendar))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Exported %d events to %s\n", n, cfg.ExportFilename)
	return nil
}

// serve runs the HTTP API and the refresh schedule until SIGINT/SIGTERM.
func serve(ctx context.Context, cfg *config.Config, reg *source.Registry, exporter *export.Exporter, loader *source.Loader) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := &scheduler.Job{Config: cfg, Exporter: exporter, Loader: loader}
	sched, err := scheduler.New(cfg.RefreshCron, cfg.Location(), job)
	if err != nil {
		return err
	}
	srv := web.NewServer(cfg, reg, exporter)

	errCh := make(chan error, 2)
	go func() { errCh <- sched.Start(ctx) }()
	go func() { errCh <- srv.Serve(ctx) }()

	// The first component to return ends the process; the other one
	// follows once the context is cancelled.
	err = <-errCh
	stop()
	if err2 := <-errCh; err == nil {
		err = err2
	}

	appLog.Info("gcalexport exiting")
	return err
}

func loadConfig(flags flagConfig) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", flags.configPath, err)
	}

	cfg.ApplyEnv(os.Getenv)

	// CLI flags override file and environment.
	if flags.calendar != "" {
		cfg.Calendar = flags.calendar
	}
	if flags.from != "" {
		cfg.DateStart = flags.from
	}
	if flags.to != "" {
		cfg.DateEnd = flags.to
	}
	if flags.out != "" {
		cfg.ExportFilename = flags.out
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	if flags.fold {
		cfg.FoldLines = true
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseFlags reads flags and the optional positional form
// "<start-date> <end-date> <filename>".
func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("gcalexport", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: gcalexport [flags] [<start-date> <end-date> <filename>]")
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.configPath, "config", "./gcalexport.yaml", "Path to config file")
	fs.StringVar(&cfg.calendar, "calendar", "", "Calendar ID to export (overrides config)")
	fs.StringVar(&cfg.from, "from", "", "First day to export, e.g. 2023-05-01 or \"today\"")
	fs.StringVar(&cfg.to, "to", "", "Last day to export (inclusive)")
	fs.StringVar(&cfg.out, "out", "", "Output .ics file (overrides config)")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&cfg.serve, "serve", false, "Serve the HTTP API and re-export on the refresh schedule")
	fs.BoolVar(&cfg.fold, "fold", false, "Fold lines longer than 75 octets")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, errUsage
		}
		return cfg, fmt.Errorf("%w: %v", errUsage, err)
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 3:
		cfg.from, cfg.to, cfg.out = rest[0], rest[1], rest[2]
	default:
		fs.Usage()
		return cfg, fmt.Errorf("%w: expected 0 or 3 positional arguments, got %d", errUsage, len(rest))
	}

	return cfg, nil
}
