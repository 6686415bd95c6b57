package main

import (
	"database/sql"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/questlog/internal/backup"
	"github.com/dukerupert/questlog/internal/config"
	"github.com/dukerupert/questlog/internal/database"
	"github.com/dukerupert/questlog/internal/logging"
	"github.com/dukerupert/questlog/internal/store"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage encrypted database snapshots",
	}
	cmd.AddCommand(backupNowCmd(), backupListCmd(), backupRestoreCmd())
	return cmd
}

// openManager loads config, opens the database and builds a backup manager.
// The caller closes the returned database.
func openManager() (*backup.Manager, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if !cfg.Backup.Enabled() {
		return nil, nil, fmt.Errorf("%w: set QUESTLOG_BACKUP_S3_* and QUESTLOG_BACKUP_PASSPHRASE", backup.ErrNotConfigured)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return backup.NewManager(cfg.Backup, db, store.NewBackupStore(db), logger), db, nil
}

func backupNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Take a snapshot immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, db, err := openManager()
			if err != nil {
				return err
			}
			defer db.Close()

			b, err := m.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %d uploaded to %s (%d bytes)\n", b.ID, b.ObjectKey, b.SizeBytes)
			return nil
		},
	}
}

func backupListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			m, db, err := openManager()
			if err != nil {
				return err
			}
			defer db.Close()

			backups, err := m.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tSIZE\tKEY")
			for _, b := range backups {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", b.ID, b.StartedAt.Format(time.RFC3339), b.Status, b.SizeBytes, b.ObjectKey)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum snapshots to list")
	return cmd
}

func backupRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [id] [dest]",
		Short: "Download, decrypt and verify a snapshot into a new database file",
		Long: "Restore writes the snapshot to dest, which must not exist. Stop the server and\n" +
			"point QUESTLOG_DB_PATH at the restored file to switch over.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid backup id %q", args[0])
			}
			m, db, err := openManager()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := m.Restore(cmd.Context(), id, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup %d restored to %s\n", id, args[1])
			return nil
		},
	}
}
