package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/pcsguide/internal/config"
	"github.com/ehr/pcsguide/internal/domain/checklist"
	"github.com/ehr/pcsguide/internal/domain/navigator"
	"github.com/ehr/pcsguide/internal/domain/pcstables"
	"github.com/ehr/pcsguide/internal/domain/rules"
	"github.com/ehr/pcsguide/internal/platform/db"
	"github.com/ehr/pcsguide/internal/platform/reference"
	"github.com/ehr/pcsguide/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pcs-server",
		Short:        "ICD-10-PCS guided code proposal service",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(proposeCmd())
	root.AddCommand(lookupCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(referenceCmd())
	return root
}

// newLogger returns a JSON logger, or a console logger in development.
// An unknown level falls back to info.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// setup loads and validates config and builds the CLI logger. CLI commands
// log to stderr so their JSON output on stdout stays clean.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(cfg, os.Stderr), nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

// loadReference loads the reference bundle, reading tables from PostgreSQL
// when configured. The returned pool is nil unless one was opened.
func loadReference(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*reference.Bundle, *pgxpool.Pool, error) {
	var (
		pool *pgxpool.Pool
		repo pcstables.Repository
	)
	if cfg.UsesPostgres() {
		var err error
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		repo = pcstables.NewRepoPG(pool)
	}

	bundle, err := reference.Load(ctx, cfg, repo, logger)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, fmt.Errorf("load reference data: %w", err)
	}
	return bundle, pool, nil
}

func newClassifier(cfg *config.Config, logger zerolog.Logger) (*checklist.Classifier, error) {
	defs, err := checklist.DefaultDefinitions()
	if err != nil {
		return nil, err
	}
	var remote checklist.RemoteScorer
	if cfg.RemoteClassifier() {
		remote = checklist.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
		logger.Info().Str("model", cfg.GeminiModel).Msg("remote checklist classifier enabled")
	}
	return checklist.NewClassifier(defs, remote, logger)
}

func newNavigator(b *reference.Bundle, logger zerolog.Logger) *navigator.Navigator {
	return navigator.New(b.Index, b.Tables, nil,
		navigator.WithDeviceResolver(b.Devices),
		navigator.WithBodyPartResolver(b.BodyParts),
		navigator.WithLogger(logger),
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the PCS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func proposeCmd() *cobra.Command {
	var (
		flags    []string
		approach string
		device   string
		list     string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "propose <query>",
		Short: "Propose candidate codes for an index query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			bundle, pool, err := loadReference(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			query := strings.Join(args, " ")
			facts := rules.Facts{
				Flags:        flags,
				ApproachName: approach,
				DeviceName:   device,
				IndexQuery:   query,
				AnatomyTerms: []string{query},
			}
			if list != "" {
				c, err := bundle.Checklists.Constraints(list)
				if err != nil {
					return fmt.Errorf("checklist %q: %w", list, err)
				}
				facts.Checklist = c
			}
			if limit <= 0 {
				limit = cfg.DefaultCandidates
			}

			res := newNavigator(bundle, logger).ProposeCodes(ctx, query, facts, min(limit, cfg.MaxCandidates))
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringSliceVar(&flags, "flag", nil, "Note flag, e.g. \"biopsy\" or \"removed at end\" (repeatable)")
	cmd.Flags().StringVar(&approach, "approach", "", "Approach name, e.g. Open")
	cmd.Flags().StringVar(&device, "device", "", "Device name")
	cmd.Flags().StringVar(&list, "checklist", "", "Checklist id (debridement, aneurysm_repair)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum candidates (default from config)")
	return cmd
}

func lookupCmd() *cobra.Command {
	var maxResults int
	cmd := &cobra.Command{
		Use:   "lookup <term>",
		Short: "Search the alphabetic index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			bundle, pool, err := loadReference(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}
			hits := bundle.Index.Lookup(strings.Join(args, " "), maxResults)
			return writeJSON(cmd.OutOrStdout(), hits)
		},
	}
	cmd.Flags().IntVar(&maxResults, "max", 25, "Maximum hits")
	return cmd
}

func classifyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Pick the checklist that matches an operative note",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if file != "" {
				data, err := readNote(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = data
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("note text is required (argument or --file)")
			}

			classifier, err := newClassifier(cfg, logger)
			if err != nil {
				return err
			}
			d := classifier.Detect(cmd.Context(), text)
			resp := checklist.ClassifyResponse{Detection: d}
			if d.Label != "" {
				resp.Title, _ = classifier.Title(d.Label)
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the note from a file (\"-\" for stdin)")
	return cmd
}

func readNote(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return string(data), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS, schema)
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schemaOrDefault(schema))

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS, schema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), schemaOrDefault(schema), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func schemaOrDefault(schema string) string {
	if schema == "" {
		return db.DefaultSchema
	}
	return schema
}

func printStatuses(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func referenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Manage reference data",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored axis tables with the tables XML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			if path == "" {
				path = cfg.TablesXML
			}

			store, err := pcstables.LoadFile(path, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if _, err := db.NewMigrator(pool, migrations.FS, "").Up(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			n, err := pcstables.NewRepoPG(pool).ReplaceTables(ctx, store.Tables())
			if err != nil {
				return err
			}
			logger.Info().Int("tables", store.Len()).Int64("records", n).Msg("reference tables imported")
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d table(s), %d label record(s).\n", store.Len(), n)
			return nil
		},
	}
	importCmd.Flags().String("file", "", "Tables XML file (default PCS_TABLES_XML)")
	cmd.AddCommand(importCmd)

	return cmd
}
