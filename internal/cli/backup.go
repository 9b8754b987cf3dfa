package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/cardvault/internal/config"
	"github.com/ramonehamilton/cardvault/internal/storage"
)

// NewBackupCommand creates the backup command and its subcommands.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore database backups",
		Long: `Create, list and restore database backups.

Backups are encrypted when the environment variable named by
backup.password_env is set.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Back up the database now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			info, err := newBackupManager(cfg, nil).Create(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%d bytes)\n", info.Path, info.Size)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			backups, err := newBackupManager(cfg, nil).List()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No backups")
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tCREATED\tSIZE\tENCRYPTED")
			for _, b := range backups {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", b.Name, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Size, b.Encrypted)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <backup>",
		Short: "Replace the database with a backup",
		Long: `Replace the database with a backup. The argument is a path or a name
from "backup list". Stop the server first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			bm := newBackupManager(cfg, nil)

			path := args[0]
			if filepath.Base(path) == path {
				path = filepath.Join(bm.Dir(), path)
			}
			if err := bm.Restore(cmd.Context(), path); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", path)
			return err
		},
	})

	return cmd
}

func newBackupManager(cfg *config.Config, logger *slog.Logger) *storage.BackupManager {
	return storage.NewBackupManager(cfg.Database.Path, storage.BackupOptions{
		Dir:      cfg.Backup.Dir,
		Password: cfg.BackupPassword(),
		Keep:     cfg.Backup.Keep,
		Logger:   logger,
	})
}
