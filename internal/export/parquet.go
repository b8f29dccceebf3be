package export

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/filipecarmo81/operadora-bot/internal/kpi"
)

// Parquet row shapes, one per KPI table. Tags keep the table column names;
// pointer fields become optional columns with native null bitmaps, so
// engines can push down IS NULL on sinistralidade and id_prestador.

type sinistralidadeParquet struct {
	Competencia    string   `parquet:"competencia"`
	Receita        float64  `parquet:"receita"`
	Sinistro       float64  `parquet:"sinistro"`
	Sinistralidade *float64 `parquet:"sinistralidade,optional"`
}

type prestadorCustoParquet struct {
	Competencia string  `parquet:"competencia"`
	IDPrestador *int64  `parquet:"id_prestador,optional"`
	Nome        *string `parquet:"nome,optional"`
	Total       float64 `parquet:"total"`
}

type faixaCustoParquet struct {
	Competencia string  `parquet:"competencia"`
	Faixa       string  `parquet:"faixa"`
	Total       float64 `parquet:"total"`
}

type utilizacaoParquet struct {
	Competencia   string  `parquet:"competencia"`
	Plano         string  `parquet:"cd_plano"`
	UF            string  `parquet:"sg_uf"`
	Sexo          string  `parquet:"sexo"`
	Faixa         string  `parquet:"faixa"`
	Beneficiarios int64   `parquet:"beneficiarios"`
	Eventos       int64   `parquet:"eventos"`
	Total         float64 `parquet:"total"`
}

func writeParquetFiles(dump *kpi.Dump, dir string) ([]string, error) {
	sin := make([]sinistralidadeParquet, len(dump.Sinistralidade))
	for i, r := range dump.Sinistralidade {
		sin[i] = sinistralidadeParquet{
			Competencia:    r.Competencia,
			Receita:        r.Receita,
			Sinistro:       r.Sinistro,
			Sinistralidade: r.Sinistralidade,
		}
	}

	prest := make([]prestadorCustoParquet, len(dump.Prestadores))
	for i, r := range dump.Prestadores {
		prest[i] = prestadorCustoParquet{
			Competencia: r.Competencia,
			IDPrestador: r.IDPrestador,
			Nome:        r.Nome,
			Total:       r.Total,
		}
	}

	faixas := make([]faixaCustoParquet, len(dump.Faixas))
	for i, r := range dump.Faixas {
		faixas[i] = faixaCustoParquet{
			Competencia: r.Competencia,
			Faixa:       r.Faixa,
			Total:       r.Total,
		}
	}

	util := make([]utilizacaoParquet, len(dump.Utilizacao))
	for i, r := range dump.Utilizacao {
		util[i] = utilizacaoParquet{
			Competencia:   r.Competencia,
			Plano:         r.Plano,
			UF:            r.UF,
			Sexo:          r.Sexo,
			Faixa:         r.Faixa,
			Beneficiarios: r.Beneficiarios,
			Eventos:       r.Eventos,
			Total:         r.Total,
		}
	}

	var paths []string
	write := func(table string, fn func(path string) error) error {
		path, err := outputPath(dir, table, FormatParquet)
		if err != nil {
			return err
		}
		if err := fn(path); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
		paths = append(paths, path)
		return nil
	}

	if err := write(tableSinistralidade, func(p string) error { return writeParquet(p, sin) }); err != nil {
		return nil, err
	}
	if err := write(tablePrestador, func(p string) error { return writeParquet(p, prest) }); err != nil {
		return nil, err
	}
	if err := write(tableFaixa, func(p string) error { return writeParquet(p, faixas) }); err != nil {
		return nil, err
	}
	if err := write(tableUtilizacao, func(p string) error { return writeParquet(p, util) }); err != nil {
		return nil, err
	}
	return paths, nil
}

// writeParquet writes rows to path. Zstd over Snappy for the extra
// compression; KPI tables are small enough that the default single row
// group is right.
func writeParquet[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
	)
	if _, err := writer.Write(rows); err != nil {
		file.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return file.Close()
}
