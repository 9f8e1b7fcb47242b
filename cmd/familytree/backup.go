package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scrypster/familytree/internal/backup"
	"github.com/scrypster/familytree/internal/config"
)

var errBackupEngine = errors.New("backup and restore are only supported for the sqlite storage engine; use pg_dump for postgres")

func loadSQLiteConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.StorageEngine != "sqlite" {
		return nil, errBackupEngine
	}
	return cfg, nil
}

func newBackupCmd(flags *rootFlags) *cobra.Command {
	var (
		dir  string
		keep int
		list bool
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the sqlite database",
		Long: `Snapshot the sqlite database into the backup directory.

Each snapshot is verified with an integrity check before older snapshots
beyond --keep are removed. The server may keep running while a snapshot is
taken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSQLiteConfig(flags)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = filepath.Join(cfg.Storage.DataPath, "backups")
			}
			out := cmd.OutOrStdout()

			if list {
				snapshots, err := backup.List(dir)
				if err != nil {
					return err
				}
				if flags.jsonOut {
					return printJSON(out, snapshots)
				}
				for _, s := range snapshots {
					fmt.Fprintf(out, "%s  %s  %d bytes\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.Path, s.Size)
				}
				return nil
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			result, err := backup.Snapshot(cmd.Context(), backup.Config{
				DBPath: cfg.SQLitePath(),
				Dir:    dir,
				Keep:   keep,
			}, logger)
			if err != nil {
				return err
			}
			if flags.jsonOut {
				return printJSON(out, result)
			}
			fmt.Fprintf(out, "Snapshot %s (%d members, %d relationships, %d pruned)\n",
				result.Path, result.Members, result.Relations, result.Pruned)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (default: <data>/backups)")
	cmd.Flags().IntVar(&keep, "keep", 10, "number of newest snapshots to keep")
	cmd.Flags().BoolVar(&list, "list", false, "list existing snapshots instead of taking one")
	return cmd
}

func newRestoreCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore SNAPSHOT",
		Short: "Replace the sqlite database with a snapshot",
		Long: `Replace the sqlite database with a snapshot.

Stop the server first. The snapshot is verified before and after it is
copied; on failure the previous database is put back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSQLiteConfig(flags)
			if err != nil {
				return err
			}
			if err := backup.Restore(cmd.Context(), args[0], cfg.SQLitePath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n", cfg.SQLitePath(), args[0])
			return nil
		},
	}
}
