package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-introspect/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-introspect/pkg/config"
	"github.com/ekaya-inc/ekaya-introspect/pkg/crypto"
	"github.com/ekaya-inc/ekaya-introspect/pkg/logging"
	"github.com/ekaya-inc/ekaya-introspect/pkg/models"
	"github.com/ekaya-inc/ekaya-introspect/pkg/retry"
	"github.com/ekaya-inc/ekaya-introspect/pkg/services"
	"github.com/ekaya-inc/ekaya-introspect/pkg/snapshot"
	"github.com/ekaya-inc/ekaya-introspect/pkg/telemetry"
)

// Version is set at build time via ldflags
var Version = "dev"

// app holds what every command needs after configuration is loaded.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	provider    *telemetry.Provider
	datasources services.DatasourceService
}

func (a *app) close(ctx context.Context) {
	if a.datasources != nil {
		_ = a.datasources.Close()
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// loader builds the app on first use so commands can adjust configuration
// from their own flags before anything connects.
type loader struct {
	configPath string
	logLevel   string
	app        *app
}

func (l *loader) load(ctx context.Context, overrides ...func(*config.Config)) (*app, error) {
	if l.app != nil {
		return l.app, nil
	}
	cfg, err := config.Load(l.configPath, Version)
	if err != nil {
		return nil, err
	}
	if l.logLevel != "" {
		cfg.LogLevel = l.logLevel
	}
	for _, override := range overrides {
		override(cfg)
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l.app = a
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	instruments := telemetry.NoopInstruments()
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, Version)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.provider = provider
		instruments = telemetry.NewInstruments()
	}

	factory := datasource.NewDatasourceAdapterFactory(logger,
		datasource.WithRetryConfig(retry.DefaultConfig()),
		datasource.WithInstruments(instruments),
	)
	a.datasources, err = services.NewDatasourceService(cfg, factory, instruments, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	logger.Debug("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Int("datasources", len(cfg.Datasources)),
	)
	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	l := &loader{}

	root := &cobra.Command{
		Use:           "ekaya-introspect",
		Short:         "Introspect warehouse catalogs and column statistics",
		Long:          "Discover databases, schemas, tables, columns and views across Snowflake, PostgreSQL, MySQL, BigQuery, SQL Server and Redshift, with per-column statistics.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if l.app != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				l.app.close(ctx)
			}
		},
	}
	root.PersistentFlags().StringVar(&l.configPath, "config", config.DefaultConfigPath, "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&l.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newIntrospectCmd(l), newQueryCmd(l), newTestCmd(l), newSourcesCmd(l), newSealCmd())
	return root
}

func newIntrospectCmd(l *loader) *cobra.Command {
	var (
		databases, schemas, tables []string
		output, format             string
		skipStatistics             bool
	)

	cmd := &cobra.Command{
		Use:   "introspect [datasource]",
		Short: "Write a full introspection snapshot of one data source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := l.load(ctx, func(cfg *config.Config) {
				if skipStatistics {
					cfg.Introspection.SkipStatistics = true
				}
			})
			if err != nil {
				return err
			}

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			name, err = a.datasources.Resolve(name)
			if err != nil {
				return err
			}

			var opts models.IntrospectionOptions
			if cmd.Flags().Changed("database") {
				opts.Databases = databases
			}
			if cmd.Flags().Changed("schema") {
				opts.Schemas = schemas
			}
			if cmd.Flags().Changed("table") {
				opts.Tables = tables
			}

			snapCfg := a.cfg.Snapshot
			if cmd.Flags().Changed("output") {
				snapCfg.Destination = output
			}
			if cmd.Flags().Changed("format") {
				snapCfg.Format = format
			}
			writer, err := snapshot.New(ctx, snapCfg, cmd.OutOrStdout(), a.logger)
			if err != nil {
				return err
			}

			start := time.Now()
			result, err := a.datasources.GetFullIntrospection(ctx, name, opts)
			if err != nil {
				return err
			}
			location, err := writer.Write(ctx, result)
			if err != nil {
				return err
			}

			a.logger.Info("introspection complete",
				zap.String("datasource", name),
				zap.String("snapshot_id", result.ID.String()),
				zap.String("location", location),
				zap.Int("tables", len(result.Tables)),
				zap.Int("columns", len(result.Columns)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&databases, "database", nil, "only include this database (repeatable)")
	cmd.Flags().StringArrayVar(&schemas, "schema", nil, "only include this schema (repeatable)")
	cmd.Flags().StringArrayVar(&tables, "table", nil, "only include this table (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "directory or s3://bucket/prefix; stdout when empty")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "snapshot format: json or yaml")
	cmd.Flags().BoolVar(&skipStatistics, "skip-statistics", false, "do not compute column statistics")
	return cmd
}

func newTestCmd(l *loader) *cobra.Command {
	return &cobra.Command{
		Use:   "test [datasource]",
		Short: "Test connectivity to one or all data sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := l.load(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				if err := a.datasources.TestDataSource(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: ok\n", args[0])
				return nil
			}

			results := a.datasources.TestAllDataSources(ctx)
			names := make([]string, 0, len(results))
			for name := range results {
				names = append(names, name)
			}
			sort.Strings(names)

			failed := 0
			for _, name := range names {
				if err := results[name]; err != nil {
					failed++
					fmt.Fprintf(out, "%s: FAILED (%s)\n", name, logging.SanitizeError(err))
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d data sources failed", failed, len(names))
			}
			return nil
		},
	}
}

func newSourcesCmd(l *loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List compiled-in adapter types and configured data sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := l.load(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			fmt.Fprintln(w, "ADAPTER\tNAME\tDESCRIPTION")
			for _, info := range datasource.RegisteredAdapters() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.Type, info.DisplayName, info.Description)
			}
			fmt.Fprintln(w)

			fmt.Fprintln(w, "DATASOURCE\tTYPE\tAVAILABLE")
			for _, ds := range a.datasources.List() {
				marker := ""
				if ds.Name == a.cfg.DefaultDatasource {
					marker = " (default)"
				}
				fmt.Fprintf(w, "%s%s\t%s\t%t\n", ds.Name, marker, ds.Type, datasource.IsRegistered(ds.Type))
			}
			return w.Flush()
		},
	}
}

func newQueryCmd(l *loader) *cobra.Command {
	var (
		params  []string
		maxRows int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query [datasource] SQL",
		Short: "Run one read-only SQL statement and print the rows as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := l.load(cmd.Context())
			if err != nil {
				return err
			}

			req := services.QueryRequest{SQL: args[len(args)-1], MaxRows: maxRows, Timeout: timeout}
			if len(args) == 2 {
				req.DataSource = args[0]
			}
			for _, p := range params {
				req.Params = append(req.Params, p)
			}

			resp, err := a.datasources.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "positional parameter value (repeatable)")
	cmd.Flags().IntVar(&maxRows, "max-rows", 100, "maximum rows to return; 0 for no limit")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "query timeout")
	return cmd
}

func newSealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal [value]",
		Short: "Encrypt a credential value for use in the configuration file",
		Long:  "Encrypts a value with EKAYA_CREDENTIAL_KEY and prints it with the enc: prefix. The value is read from standard input when not given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sealer, err := crypto.NewCredentialSealer(os.Getenv("EKAYA_CREDENTIAL_KEY"))
			if err != nil {
				return fmt.Errorf("EKAYA_CREDENTIAL_KEY: %w", err)
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read value: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}

			sealed, err := sealer.Seal(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
