package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	orqlmapper "github.com/orql/orql-mapper"
	"github.com/orql/orql-mapper/internal/config"
	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/migrate"
	"github.com/orql/orql-mapper/internal/schema"
)

var (
	configFile    string
	dbURL         string
	schemaFile    string
	schemaName    string
	logLevel      string
	format        string
	outputFile    string
	outputDir     string
	tables        string
	excludeTables string
	noLock        bool
)

var rootCmd = &cobra.Command{
	Use:   "orql-migrate",
	Short: "Reconcile declared schemas with a live database",
	Long: `orql-migrate compares the schemas declared in a YAML file with a PostgreSQL, MySQL, or SQLite
database and applies the DDL needed to make them agree. Every run is one transaction.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "orql.yaml", "Config file")
	pf.StringVar(&dbURL, "db-url", "", "Database URL (postgres://, mysql://, sqlite://); overrides the config file")
	pf.StringVar(&schemaFile, "schema-file", "", "Schema YAML file; overrides the config file")
	pf.StringVarP(&schemaName, "schema", "s", "", "Database schema name (default: public for PostgreSQL)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVarP(&format, "format", "f", "text", "Output format: text or markdown")
	pf.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	pf.BoolVar(&noLock, "no-lock", false, "Do not take the advisory schema lock")

	for _, mode := range []migrate.Mode{migrate.ModeCreate, migrate.ModeUpdate, migrate.ModeDrop} {
		rootCmd.AddCommand(newApplyCmd(mode))
	}

	planCmd := &cobra.Command{
		Use:   "plan [create|update|drop]",
		Short: "Show the statements a run would execute without applying them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPlan,
	}
	rootCmd.AddCommand(planCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Describe the live tables, columns and foreign keys",
		RunE:  runInspect,
	}
	inspectCmd.Flags().StringVarP(&tables, "tables", "t", "", "Specific tables (comma-separated, optional)")
	inspectCmd.Flags().StringVar(&excludeTables, "exclude", "", "Tables to leave out (comma-separated)")
	inspectCmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "Output directory for multi-file output")
	rootCmd.AddCommand(inspectCmd)
}

func newApplyCmd(mode migrate.Mode) *cobra.Command {
	short := map[migrate.Mode]string{
		migrate.ModeCreate: "Create missing tables, columns and foreign keys",
		migrate.ModeUpdate: "Create, rename and alter until the database matches the schema file",
		migrate.ModeDrop:   "Drop every declared table",
	}[mode]

	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), mode)
		},
	}
}

// settings loads the config file and applies flag overrides.
func settings() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.Connection = config.ConnectionConfig{URL: dbURL}
	}
	if schemaFile != "" {
		cfg.SchemaFile = schemaFile
	}
	if schemaName != "" {
		cfg.SchemaName = schemaName
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if noLock {
		cfg.Lock.Disabled = true
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

func connect(ctx context.Context, cfg *config.Config) (db.Connection, func(), error) {
	opts, err := cfg.Connection.Options()
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	closeFn := func() {
		if err := conn.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close %s connection: %v\n", opts.Dialect, err)
		}
	}
	return conn, closeFn, nil
}

func runOptions(cfg *config.Config) *orqlmapper.Options {
	return &orqlmapper.Options{
		SchemaName:  cfg.SchemaName,
		DisableLock: cfg.Lock.Disabled,
		LockKey:     cfg.Lock.Key,
		LockTimeout: cfg.Lock.Timeout,
	}
}

func runApply(ctx context.Context, mode migrate.Mode) error {
	cfg, err := settings()
	if err != nil {
		return err
	}
	reg, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return err
	}
	conn, closeConn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	report, err := orqlmapper.Reconcile(ctx, conn, reg, mode, runOptions(cfg))
	if err != nil {
		return fmt.Errorf("%s failed: %w", mode, err)
	}
	return writeOutput(func(w io.Writer) error {
		return orqlmapper.FormatReport(w, report, format)
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	mode := migrate.ModeUpdate
	if len(args) == 1 {
		var err error
		if mode, err = migrate.ParseMode(args[0]); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	cfg, err := settings()
	if err != nil {
		return err
	}
	reg, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return err
	}
	conn, closeConn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	report, err := orqlmapper.Plan(ctx, conn, reg, mode, runOptions(cfg))
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}
	return writeOutput(func(w io.Writer) error {
		return orqlmapper.FormatReport(w, report, format)
	})
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if outputDir != "" && outputFile != "" {
		return fmt.Errorf("cannot use both --output-dir and --output flags")
	}

	cfg, err := settings()
	if err != nil {
		return err
	}
	conn, closeConn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	snapshot, err := orqlmapper.Inspect(ctx, conn, cfg.SchemaName, parseTableList(tables))
	if err != nil {
		return fmt.Errorf("failed to extract schema: %w", err)
	}
	filterExcludedTables(snapshot, parseTableList(excludeTables))

	if outputDir != "" {
		return orqlmapper.FormatSnapshotDir(outputDir, snapshot, format)
	}
	return writeOutput(func(w io.Writer) error {
		return orqlmapper.FormatSnapshot(w, snapshot, format)
	})
}

// writeOutput runs write against --output or stdout.
func writeOutput(write func(io.Writer) error) error {
	var writer io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close output file: %v\n", err)
			}
		}()
		writer = f
	}

	if err := write(writer); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func parseTableList(s string) []string {
	if s == "" {
		return nil
	}
	list := strings.Split(s, ",")
	for i, t := range list {
		list[i] = strings.TrimSpace(t)
	}
	return list
}

func filterExcludedTables(s *schema.Snapshot, excludeList []string) {
	if len(excludeList) == 0 {
		return
	}

	excludeSet := make(map[string]bool)
	for _, tableName := range excludeList {
		excludeSet[tableName] = true
	}

	filteredTables := make([]schema.Table, 0, len(s.Tables))
	for _, table := range s.Tables {
		if !excludeSet[table.Name] {
			filteredTables = append(filteredTables, table)
		}
	}
	s.Tables = filteredTables
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
