package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/trymoose/imessage-exporter/internal/chatdb"
	"github.com/trymoose/imessage-exporter/internal/config"
	"github.com/trymoose/imessage-exporter/internal/export"
	"github.com/trymoose/imessage-exporter/internal/extract"
	"github.com/trymoose/imessage-exporter/internal/watch"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	flagDBPath  string
	flagConfig  string
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "imessage-exporter",
		Short: "Extract and export iMessage conversations",
		Long: `imessage-exporter reads the Messages database (chat.db), decodes the
styled message bodies Apple stores as binary archives, resolves reactions,
replies, and edit history, and writes conversations out as text or ndjson.

The database is only ever opened read-only.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db-path", "", "path to chat.db (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to an alternate config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd(), exportCmd(), diagnoseCmd(), watchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config, applies the persistent flags, and builds the
// logger every command shares.
func setup() (*config.Config, zerolog.Logger, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if flagDBPath != "" {
		cfg.DatabasePath = flagDBPath
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
	return cfg, logger, nil
}

// signalContext cancels on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runExtraction opens the database and runs the full pipeline.
func runExtraction(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*extract.Result, error) {
	db, err := chatdb.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return extract.Run(ctx, db, extract.Options{
		Workers:          cfg.Workers,
		CheckAttachments: !cfg.SkipAttachmentCheck,
		Logger:           logger,
	})
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("imessage-exporter %s (%s, %s)\n", version, commit, buildDate)
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		format    string
		outDir    string
		workers   int
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export conversations to files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if format != "" {
				cfg.Format = format
			}
			if outDir != "" {
				cfg.ExportDir = outDir
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if skipCheck {
				cfg.SkipAttachmentCheck = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			res, err := runExtraction(ctx, cfg, logger)
			if err != nil {
				return err
			}

			opts := export.Options{Dir: cfg.ExportDir, SelfName: cfg.SelfName, Logger: logger}
			switch cfg.Format {
			case "txt":
				err = export.WriteTXT(ctx, res, opts)
			case "ndjson":
				err = export.WriteNDJSON(ctx, res, opts)
			}
			if err != nil {
				return err
			}
			logger.Info().Str("dir", cfg.ExportDir).Str("format", cfg.Format).Msg("export complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "export format: txt or ndjson")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default: one per CPU)")
	cmd.Flags().BoolVar(&skipCheck, "skip-attachment-check", false, "do not stat attachment files on disk")
	return cmd
}

func diagnoseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Print a diagnostic report for the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			res, err := runExtraction(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(res.Report, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to serialize report: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}
			res.Report.Render(os.Stdout)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func watchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run extraction whenever the database changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			return watch.Watch(ctx, watch.Options{
				Path:     cfg.DatabasePath,
				Debounce: debounce,
				Logger:   logger,
			}, func(ctx context.Context) {
				res, err := runExtraction(ctx, cfg, logger)
				if err != nil {
					logger.Error().Err(err).Msg("extraction failed")
					return
				}
				res.Report.Render(os.Stdout)
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before re-running after a change")
	return cmd
}
