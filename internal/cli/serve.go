package cli

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/cardvault/internal/allocation"
	"github.com/ramonehamilton/cardvault/internal/api"
	"github.com/ramonehamilton/cardvault/internal/api/websocket"
	"github.com/ramonehamilton/cardvault/internal/cards/scryfall"
	"github.com/ramonehamilton/cardvault/internal/collection"
	"github.com/ramonehamilton/cardvault/internal/config"
	"github.com/ramonehamilton/cardvault/internal/containers"
	"github.com/ramonehamilton/cardvault/internal/inventory"
	"github.com/ramonehamilton/cardvault/internal/storage"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Long: `Run the REST API and WebSocket server.

The log level follows the configuration file while the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, port, cmd)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides the config file)")

	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, port int, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	level := new(slog.LevelVar)
	if l, err := cfg.Log.SlogLevel(); err == nil {
		level.Set(l)
	}
	logger := newLogger(cfg.Log.Format, cmd.ErrOrStderr(), level)
	slog.SetDefault(logger)

	svc, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	hub := websocket.NewHub()

	var metadata inventory.MetadataLookup
	if cfg.Scryfall.Enabled {
		metadata = scryfall.NewClient(scryfall.Options{
			BaseURL:   cfg.Scryfall.BaseURL,
			RateLimit: cfg.Scryfall.RateLimit,
			Timeout:   cfg.GetScryfallTimeout(),
			Logger:    logger,
		})
	}

	coll := collection.NewStore(svc.Cards(), collection.Options{Logger: logger, Notifier: hub})
	engine := allocation.NewEngine(coll, svc.Containers(), allocation.Options{Logger: logger, Notifier: hub})
	storeOpts := containers.Options{Logger: logger, Notifier: hub, Metadata: metadata}

	services := &api.Services{
		Registry:   inventory.NewRegistry(svc.Load),
		Collection: coll,
		Engine:     engine,
		Decks:      containers.NewDeckStore(svc.Containers(), engine, coll, storeOpts),
		Binders:    containers.NewBinderStore(svc.Containers(), engine, coll, storeOpts),
	}

	server := api.NewServer(&api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.GetRequestTimeout(),
	}, services, hub)

	if err := server.Start(); err != nil {
		return err
	}

	go func() {
		err := config.Watch(ctx, opts.ConfigPath, func(updated *config.Config) {
			l, err := updated.Log.SlogLevel()
			if err != nil {
				return
			}
			if l != level.Level() {
				level.Set(l)
				logger.Info("Log level changed", "level", l.String())
			}
		})
		if err != nil {
			log.Printf("Config watcher stopped: %v", err)
		}
	}()

	if interval := cfg.GetBackupInterval(); interval > 0 {
		scheduler := storage.NewBackupScheduler(newBackupManager(cfg, logger), interval, logger)
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logger.Error("Backup scheduler stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	return nil
}
