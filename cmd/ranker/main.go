// cmd/ranker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"seattle-source-ranker/internal/api"
	"seattle-source-ranker/internal/checkpoint"
	"seattle-source-ranker/internal/collector"
	"seattle-source-ranker/internal/config"
	"seattle-source-ranker/internal/github"
	"seattle-source-ranker/internal/pool"
	"seattle-source-ranker/internal/registry"
	"seattle-source-ranker/internal/scoring"
	"seattle-source-ranker/internal/updater"
)

var dataFileFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:           "ranker",
		Short:         "Seattle Source Ranker - collect and rank Seattle-area GitHub repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataFileFlag, "data-file", "", "pool data file path (overrides DATA_FILE)")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(fullUpdateCmd())
	rootCmd.AddCommand(pypiUpdateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rankCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired components every subcommand needs.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	pool        *pool.Manager
	checkpoints *checkpoint.Store
	github      *github.Client
	updater     *updater.Updater
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataFileFlag != "" {
		cfg.DataFile = dataFileFlag
	}

	logLevel := new(slog.LevelVar)
	setLogLevel(cfg.LogLevel, logLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	p, err := pool.Load(cfg.DataFile, logger)
	if err != nil {
		return nil, err
	}

	cps, err := checkpoint.NewStore(cfg.CheckpointDir, logger)
	if err != nil {
		return nil, err
	}

	strategy, err := pool.ParseStrategy(cfg.ReplaceStrategy)
	if err != nil {
		return nil, err
	}

	gh := github.NewClient(cfg.GithubToken, cfg.HTTPTimeout, logger)
	col := collector.New(gh, cps, cfg.CheckpointInterval, cfg.PageDelay, logger)
	reg := registry.NewClient(logger)
	upd := updater.New(p, col, gh, reg, cfg.SearchQueries, cfg.CollectConcurrency, cfg.MaxTotal, strategy, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		pool:        p,
		checkpoints: cps,
		github:      gh,
		updater:     upd,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pool size, star statistics and live checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return printStatus(a)
		},
	}
}

func refreshCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch live metrics for records not updated recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			refreshed, err := a.pool.RefreshStale(ctx, a.github, days)
			if err != nil {
				return err
			}
			fmt.Printf("Refreshed %d stale records\n", refreshed)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "refresh records older than this many days")
	return cmd
}

func collectCmd() *cobra.Command {
	var (
		target       int
		forceRestart bool
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect new repositories for all configured queries (resumable)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.updater.SetTarget(target)
			ctx, cancel := signalContext()
			defer cancel()

			if forceRestart {
				for _, q := range a.cfg.SearchQueries {
					if err := a.checkpoints.Clear(updater.TaskID(q)); err != nil {
						return err
					}
				}
			}
			if err := a.updater.CollectNew(ctx); err != nil {
				return err
			}
			return printStatus(a)
		},
	}
	cmd.Flags().IntVar(&target, "target", 0, "target pool size (0 = use MAX_TOTAL)")
	cmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard existing checkpoints and start fresh")
	return cmd
}

func fullUpdateCmd() *cobra.Command {
	var (
		target int
		days   int
	)
	cmd := &cobra.Command{
		Use:   "full-update",
		Short: "Refresh stale records, then collect new repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.updater.SetTarget(target)
			ctx, cancel := signalContext()
			defer cancel()

			if err := a.updater.FullUpdate(ctx, days); err != nil {
				return err
			}
			return printStatus(a)
		},
	}
	cmd.Flags().IntVar(&target, "target", 0, "target pool size (0 = use MAX_TOTAL)")
	cmd.Flags().IntVar(&days, "days", 7, "refresh records older than this many days")
	return cmd
}

func pypiUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pypi-update",
		Short: "Fill in PyPI monthly download counts for Python records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			enriched, err := a.updater.EnrichPython(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Enriched %d Python records with download counts\n", enriched)
			return nil
		},
	}
}

func rankCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the top repositories by influence score",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ranked := scoring.Rank(a.pool.Records())
			if len(ranked) > top {
				ranked = ranked[:top]
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tREPOSITORY\tSTARS\tFORKS\tSCORE\tTYPE")
			for i, r := range ranked {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.4f\t%s\n",
					i+1, r.Repository.NameWithOwner, r.Repository.Stars,
					r.Repository.Forks, r.Score.Final, r.Score.Type)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&top, "top", 50, "number of repositories to print")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rankings and pool status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			ctx, cancel := signalContext()
			defer cancel()

			srv := &http.Server{
				Addr:    addr,
				Handler: api.NewRouter(a.pool, a.checkpoints, a.logger),
			}

			go func() {
				<-ctx.Done()
				a.logger.Info("Shutdown signal received")
				_ = srv.Shutdown(context.Background())
			}()

			a.logger.Info("HTTP API listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}

func printStatus(a *app) error {
	records := a.pool.Records()
	fmt.Printf("Pool: %d projects (%s)\n", len(records), a.pool.Path())

	if len(records) > 0 {
		totalStars := 0
		for _, r := range records {
			totalStars += r.Stars
		}
		fmt.Printf("Stars: total %d, highest %d (%s), lowest %d (%s)\n",
			totalStars,
			records[0].Stars, records[0].NameWithOwner,
			records[len(records)-1].Stars, records[len(records)-1].NameWithOwner)
	}

	ids, err := a.checkpoints.List()
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		fmt.Printf("Live checkpoints (resumable tasks): %v\n", ids)
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
