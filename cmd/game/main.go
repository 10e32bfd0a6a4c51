package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/tatianab/hustle/internal/api"
	"github.com/tatianab/hustle/internal/config"
	"github.com/tatianab/hustle/internal/game"
	"github.com/tatianab/hustle/internal/gemini"
	"github.com/tatianab/hustle/internal/store"
	"github.com/tatianab/hustle/internal/tui"
)

func main() {
	root := &cobra.Command{
		Use:          "hustle",
		Short:        "Naija Hustle: survive a year of sapa, one week at a time",
		SilenceUsage: true,
	}
	root.AddCommand(newPlayCmd(), newServeCmd(), newResetCmd(), newAssetsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newPlayCmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			// The TUI owns the terminal, so logs go to a file.
			f, err := tea.LogToFile(logFile, "hustle")
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			logger := slog.New(slog.NewTextHandler(f, nil))

			ctx := cmd.Context()
			st, cleanup, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.ScenarioModel, cfg.ReportModel, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctrl, err := newController(cfg, client, st, logger, nil)
			if err != nil {
				return err
			}
			return tui.Run(ctrl)
		},
	}
	cmd.Flags().StringVar(&logFile, "log", "hustle.log", "file to write logs to")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API for the browser front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
			slog.SetDefault(logger)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			st, cleanup, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.ScenarioModel, cfg.ReportModel, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			hub := api.NewHub(logger)
			go hub.Run(ctx)

			ctrl, err := newController(cfg, client, st, logger, hub.Publish)
			if err != nil {
				return err
			}
			if ok, err := ctrl.HasSavedRun(ctx); err != nil {
				logger.Warn("could not check for a saved run", "error", err)
			} else if ok {
				if _, err := ctrl.Resume(ctx); err != nil {
					logger.Warn("saved run resumed without a scenario", "error", err)
				}
			}

			server := api.New(ctrl, hub, logger, cfg.CORSOrigins)
			httpServer := &http.Server{
				Addr:              cfg.Addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			logger.Info("hustle api listening", "addr", cfg.Addr, "store", cfg.Store)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the saved run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, cleanup, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := st.Clear(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Saved run cleared.")
			return nil
		},
	}
}

func newController(cfg *config.Config, client *gemini.Client, st store.Store, logger *slog.Logger, notify func(game.Event)) (*game.Controller, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return game.New(game.Options{
		Rules:          cfg.Rules,
		Narrator:       client,
		Analyst:        client,
		Store:          st,
		Rand:           rand.New(rand.NewSource(seed)),
		Logger:         logger,
		PrefetchWait:   cfg.PrefetchWait,
		AnalystTimeout: cfg.AnalystTimeout,
		AutoTriggers:   cfg.AutoTriggers,
		Notify:         notify,
	})
}

// openStore builds the backend named by cfg.Store. The returned cleanup
// releases its connections.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(), func() {}, nil
	case config.StoreRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisStore(rdb), func() { rdb.Close() }, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		s := store.NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	}
	return store.NewFileStore(cfg.SaveDir), func() {}, nil
}
