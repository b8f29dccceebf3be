// Package export writes the materialized KPI tables to files for downstream
// analytical tools. Each table becomes one file in the chosen format; the
// serving schema is only read, never changed.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/filipecarmo81/operadora-bot/internal/kpi"
)

// Format selects the output file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatParquet, FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q: want parquet, csv or json", s)
}

// Exported table file names, one per materialized KPI table.
const (
	tableSinistralidade = "kpi_sinistralidade_mensal"
	tablePrestador      = "kpi_prestador_custo"
	tableFaixa          = "kpi_custo_faixa_etaria"
	tableUtilizacao     = "kpi_utilizacao"
)

// Dumper supplies full-table reads of the serving schema. *kpi.Reader
// satisfies it.
type Dumper interface {
	DumpAll(ctx context.Context) (*kpi.Dump, error)
}

type Exporter struct {
	dumper Dumper
}

func New(dumper Dumper) *Exporter {
	return &Exporter{dumper: dumper}
}

// Run dumps every KPI table and writes one file per table into dir,
// returning the absolute paths written.
func (e *Exporter) Run(ctx context.Context, format Format, dir string) ([]string, error) {
	dump, err := e.dumper.DumpAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("dump KPI tables: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory %s: %w", dir, err)
	}

	switch format {
	case FormatParquet:
		return writeParquetFiles(dump, dir)
	case FormatCSV:
		return writeCSVFiles(dump, dir)
	case FormatJSON:
		return writeJSONFiles(dump, dir)
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// outputPath joins dir and table.ext, resolved to an absolute path so the
// command can print paths that work from any cwd.
func outputPath(dir, table string, format Format) (string, error) {
	return filepath.Abs(filepath.Join(dir, table+"."+string(format)))
}
