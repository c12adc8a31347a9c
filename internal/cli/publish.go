package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/decider/internal/database"
	"github.com/rafaeljc/decider/internal/logger"
	"github.com/rafaeljc/decider/internal/store"
)

// connectDB opens the document store pool. Database settings are validated
// here because config.Load only checks them for the postgres source.
func (a *app) connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	if err := a.cfg.Database.Validate(a.cfg.App.Environment); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	return database.NewPostgresPool(ctx, &a.cfg.Database)
}

// documentName returns the --name flag or the configured source document.
func (a *app) documentName(name string) string {
	if name != "" {
		return name
	}
	return a.cfg.Source.Document
}

func newPublishCmd(a *app) *cobra.Command {
	var (
		name         string
		allowPartial bool
	)

	cmd := &cobra.Command{
		Use:   "publish [path]",
		Short: "Validate a feature document and store it as the next version",
		Long: `publish loads the document exactly as the service would and refuses to store
it when the top level is unusable. Documents with failing features are refused
unless --allow-partial is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.documentPath()
			if len(args) == 1 {
				path = args[0]
			}
			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read feature document: %w", err)
			}

			out := cmd.OutOrStdout()
			if _, err := checkDocument(out, body, !allowPartial); err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx, cancel := context.WithTimeout(ctx, a.cfg.Database.QueryTimeout)
			defer cancel()

			doc, err := store.NewPostgresStore(pool).Publish(ctx, a.documentName(name), body)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "published %s version %d\n", doc.Name, doc.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "document name (default $DECIDER_SOURCE_DOCUMENT)")
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "publish even when some features fail to load")
	return cmd
}

func newVersionsCmd(a *app) *cobra.Command {
	var (
		name  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List published versions of a feature document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx, cancel := context.WithTimeout(ctx, a.cfg.Database.QueryTimeout)
			defer cancel()

			docs, err := store.NewPostgresStore(pool).ListVersions(ctx, a.documentName(name), limit)
			if err != nil {
				return err
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("VERSION", "CREATED")
			for _, d := range docs {
				t.Row(strconv.FormatInt(d.Version, 10), d.CreatedAt.Format(time.RFC3339))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "document name (default $DECIDER_SOURCE_DOCUMENT)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of versions to list")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending document store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.Database.MigrationsPath
			}

			ctx := cmd.Context()
			pool, err := a.connectDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			return database.Migrate(ctx, pool, dir, a.cfg.Database.MigrationsTable, logger.FromContext(ctx))
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default $DECIDER_DB_MIGRATIONS_PATH)")
	return cmd
}
