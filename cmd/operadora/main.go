package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/filipecarmo81/operadora-bot/internal/config"
	"github.com/filipecarmo81/operadora-bot/internal/export"
	"github.com/filipecarmo81/operadora-bot/internal/kpi"
	"github.com/filipecarmo81/operadora-bot/internal/loader"
	"github.com/filipecarmo81/operadora-bot/internal/server"
	"github.com/filipecarmo81/operadora-bot/internal/store"
)

var (
	headline = color.New(color.FgCyan, color.Bold).SprintFunc()
	success  = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnTag  = color.New(color.FgYellow, color.Bold).SprintFunc()
	errTag   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func main() {
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "operadora",
		Short: "Operational KPI service for a health insurance operator",
		Long: "operadora loads the monthly CSV extracts into an embedded analytical\n" +
			"store, materializes the KPI tables (sinistralidade, provider cost,\n" +
			"age-bracket cost, utilization) and serves them over a read-only HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to a TOML, YAML or JSON configuration file")
	root.PersistentFlags().Int("port", defaults.Port, "HTTP listen port")
	root.PersistentFlags().Int("pg-port", defaults.PGPort, "Embedded postgres port")
	root.PersistentFlags().String("data-dir", defaults.DataDir, "Postgres data directory")
	root.PersistentFlags().String("csv-dir", defaults.CSVDir, "Directory with the four CSV extracts")

	root.AddCommand(newLoadCmd(), newServeCmd(), newExportCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errTag("error:"), err)
		os.Exit(1)
	}
}

// resolveConfig applies the precedence chain: defaults, config file,
// environment, then explicitly-set flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("pg-port") {
		cfg.PGPort, _ = cmd.Flags().GetInt("pg-port")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("csv-dir") {
		cfg.CSVDir, _ = cmd.Flags().GetString("csv-dir")
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	return store.Open(ctx, store.Config{
		Port:       uint32(cfg.PGPort),
		DataDir:    cfg.DataDir,
		RuntimeDir: cfg.RuntimeDir,
		User:       cfg.PGUser,
		Password:   cfg.PGPassword,
		Database:   cfg.PGDatabase,
	})
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the CSV extracts and rebuild every KPI table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Println(headline("operadora load"), "from", cfg.CSVDir)
			sum, err := loader.New(st.Pool).Run(ctx, cfg.CSVDir)
			if err != nil {
				return err
			}
			printLoadSummary(sum)
			return nil
		},
	}
}

func printLoadSummary(sum *loader.Summary) {
	elapsed := sum.Finished.Sub(sum.Started)

	fmt.Println()
	fmt.Printf("%s in %s\n", success("Load complete"), elapsed.Round(time.Millisecond))
	fmt.Printf("  %-26s %s\n", "Batch:", sum.BatchID)
	for _, f := range sum.Files {
		fmt.Printf("  %-26s %d read, %d loaded, %d skipped\n", f.File+":", f.Read, f.Loaded, f.Skipped)
	}

	tables := make([]string, 0, len(sum.KPIRows))
	for table := range sum.KPIRows {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("  %-26s %d rows\n", table+":", sum.KPIRows[table])
	}

	if len(sum.Warnings) > 0 {
		fmt.Println()
		fmt.Println(warnTag("Warnings:"))
		for _, w := range sum.Warnings {
			fmt.Printf("  %s\n", w)
		}
		if sum.WarningsDropped > 0 {
			fmt.Printf("  ... (+%d more)\n", sum.WarningsDropped)
		}
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the KPI query API and the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			webDir, _ := cmd.Flags().GetString("web")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Println(headline("operadora serve"), "on", cfg.Addr())
			return server.New(kpi.NewReader(st.Pool), webDir).Run(ctx, cfg.Addr())
		},
	}
	cmd.Flags().String("web", "web", "Directory with the static dashboard, empty disables it")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every KPI table to Parquet, CSV or JSON files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			formatStr, _ := cmd.Flags().GetString("format")
			format, err := export.ParseFormat(formatStr)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			paths, err := export.New(kpi.NewReader(st.Pool)).Run(ctx, format, dir)
			if err != nil {
				return err
			}

			fmt.Println(success("Export complete"))
			for _, p := range paths {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "parquet", "Output format: parquet, csv or json")
	cmd.Flags().String("dir", "export", "Output directory")
	return cmd
}
