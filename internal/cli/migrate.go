package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/cardvault/internal/allocation"
	"github.com/ramonehamilton/cardvault/internal/collection"
	"github.com/ramonehamilton/cardvault/internal/containers"
	"github.com/ramonehamilton/cardvault/internal/storage"
)

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema and legacy data",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(rootOpts, func(mm *storage.MigrationManager) error {
				if err := mm.Up(); err != nil {
					return err
				}
				return printVersion(cmd, mm)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [n]",
		Short: "Roll back the last n schema migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				n = v
			}
			return withMigrations(rootOpts, func(mm *storage.MigrationManager) error {
				if err := mm.Steps(-n); err != nil {
					return err
				}
				return printVersion(cmd, mm)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(rootOpts, func(mm *storage.MigrationManager) error {
				return printVersion(cmd, mm)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrations(rootOpts, func(mm *storage.MigrationManager) error {
				if err := mm.Force(v); err != nil {
					return err
				}
				return printVersion(cmd, mm)
			})
		},
	})

	cmd.AddCommand(newMigrateWishlistsCommand(rootOpts))

	return cmd
}

func newMigrateWishlistsCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "wishlists",
		Short: "Convert legacy deck wishlists into collection wishlist cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if userID == "" {
				userID = cfg.User.DefaultID
			}

			svc, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ic, err := svc.Load(cmd.Context(), userID)
			if err != nil {
				return err
			}

			coll := collection.NewStore(svc.Cards(), collection.Options{})
			engine := allocation.NewEngine(coll, svc.Containers(), allocation.Options{})
			decks := containers.NewDeckStore(svc.Containers(), engine, coll, containers.Options{})

			migrated, err := decks.MigrateAllLegacyWishlists(cmd.Context(), ic)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d deck(s) for user %s\n", migrated, ic.UserID)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user whose decks to migrate (default from config)")

	return cmd
}

func withMigrations(rootOpts *RootOptions, fn func(mm *storage.MigrationManager) error) error {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	mm, err := storage.NewMigrationManager(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = mm.Close() }()

	return fn(mm)
}

func printVersion(cmd *cobra.Command, mm *storage.MigrationManager) error {
	version, dirty, err := mm.Version()
	if err != nil {
		return err
	}
	state := ""
	if dirty {
		state = " (dirty)"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d%s\n", version, state)
	return err
}
