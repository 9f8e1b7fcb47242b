package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/familytree/internal/config"
	"github.com/scrypster/familytree/internal/importer"
	"github.com/scrypster/familytree/internal/server"
)

// shutdownGrace is how long serve waits for in-flight connections after the
// listener is closed.
var shutdownGrace = time.Second

type rootFlags struct {
	dataPath string
	jsonOut  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "familytree",
		Short: "Family tree relationship graph service",
		Long: `familytree stores members of a family and the relationships between them.

Every relationship is validated before it is written and is stored together
with its reciprocal, so parent/child, spouse and sibling links always read
the same from both sides.

Configuration is read from FAMILYTREE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       server.Version,
	}

	root.PersistentFlags().StringVar(&flags.dataPath, "data", "", "data directory for the sqlite engine (overrides FAMILYTREE_DATA_PATH)")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newServeCmd(flags),
		newImportCmd(flags),
		newAuditCmd(flags),
		newRelationsCmd(flags),
		newMigrateCmd(flags),
		newBackupCmd(flags),
		newRestoreCmd(flags),
	)
	return root
}

// loadApp reads configuration, applies flag overrides and wires the store
// and engine. Logs go to stderr so command output stays parseable.
func loadApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	return newApp(cmd.Context(), cfg, logger)
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if flags.dataPath != "" {
		cfg.Storage.DataPath = flags.dataPath
	}
	return cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and WebSocket event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr, err := server.Start(ctx, a.cfg, a.engine, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "familytree API running at http://%s\n", addr)

			<-ctx.Done()
			a.logger.Info("shutting down gracefully")
			time.Sleep(shutdownGrace)
			return nil
		},
	}
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import members and relationships from a YAML document",
		Long: `Import members and relationships from a YAML document.

Members are upserted by id. Relationships go through the same validation as
the API: reversed parent/child links are corrected and links that already
exist are skipped, so importing the same file twice is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := importer.New(a.engine, a.backend, a.logger).ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return printJSON(out, result)
			}
			fmt.Fprintf(out, "Members imported:    %d\n", result.MembersImported)
			fmt.Fprintf(out, "Relations created:   %d (%d corrected)\n", result.RelationsCreated, result.RelationsCorrected)
			fmt.Fprintf(out, "Relations skipped:   %d\n", result.RelationsSkipped)
			fmt.Fprintf(out, "Relations failed:    %d\n", result.RelationsFailed)
			for _, msg := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", msg)
			}
			if result.RelationsFailed > 0 {
				return fmt.Errorf("%d relationship(s) could not be imported", result.RelationsFailed)
			}
			return nil
		},
	}
}

func newAuditCmd(flags *rootFlags) *cobra.Command {
	var (
		memberID string
		repair   bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan stored relationships for integrity problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if repair {
				report, err := a.engine.RepairReciprocals(ctx)
				if err != nil {
					return err
				}
				if flags.jsonOut {
					if err := printJSON(out, report); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "Reciprocals created: %d, failed: %d\n", report.Created, report.Failed)
				}
			}

			report, err := a.engine.Audit(ctx, memberID)
			if err != nil {
				return err
			}
			if flags.jsonOut {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "Scanned %d relationships, %d finding(s)\n", report.RelationsScanned, len(report.Findings))
			for _, f := range report.Findings {
				fmt.Fprintf(out, "  [%s] %s\n", f.Type, f.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "only report findings involving this member id")
	cmd.Flags().BoolVar(&repair, "repair", false, "create missing reciprocals before auditing")
	return cmd
}

func newRelationsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "relations",
		Short: "List every stored relationship",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			views, err := a.engine.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.jsonOut {
				return printJSON(out, views)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFROM\tTYPE\tTO")
			for _, v := range views {
				relType := string(v.Type)
				if v.SiblingType != "" {
					relType += " (" + string(v.SiblingType) + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID,
					summaryName(v.FromMember, v.FromMemberID), relType, summaryName(v.ToMember, v.ToMemberID))
			}
			return tw.Flush()
		},
	}
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the database schema",
		Long: `Upgrade the database schema.

Databases created before relationship details were supported gain the
relations.metadata column. Up-to-date databases are left unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			applied, err := a.backend.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", applied)
			return nil
		},
	}
}
