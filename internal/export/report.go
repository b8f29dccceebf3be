package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/filipecarmo81/operadora-bot/internal/kpi"
)

func writeCSVFiles(dump *kpi.Dump, dir string) ([]string, error) {
	sinRecords := make([][]string, len(dump.Sinistralidade))
	for i, r := range dump.Sinistralidade {
		ratio := ""
		if r.Sinistralidade != nil {
			ratio = formatFloat(*r.Sinistralidade)
		}
		sinRecords[i] = []string{r.Competencia, formatFloat(r.Receita), formatFloat(r.Sinistro), ratio}
	}

	prestRecords := make([][]string, len(dump.Prestadores))
	for i, r := range dump.Prestadores {
		id, nome := "", ""
		if r.IDPrestador != nil {
			id = strconv.FormatInt(*r.IDPrestador, 10)
		}
		if r.Nome != nil {
			nome = *r.Nome
		}
		prestRecords[i] = []string{r.Competencia, id, nome, formatFloat(r.Total)}
	}

	faixaRecords := make([][]string, len(dump.Faixas))
	for i, r := range dump.Faixas {
		faixaRecords[i] = []string{r.Competencia, r.Faixa, formatFloat(r.Total)}
	}

	utilRecords := make([][]string, len(dump.Utilizacao))
	for i, r := range dump.Utilizacao {
		utilRecords[i] = []string{
			r.Competencia, r.Plano, r.UF, r.Sexo, r.Faixa,
			strconv.FormatInt(r.Beneficiarios, 10),
			strconv.FormatInt(r.Eventos, 10),
			formatFloat(r.Total),
		}
	}

	tables := []struct {
		name    string
		header  []string
		records [][]string
	}{
		{tableSinistralidade, []string{"competencia", "receita", "sinistro", "sinistralidade"}, sinRecords},
		{tablePrestador, []string{"competencia", "id_prestador", "nome", "total"}, prestRecords},
		{tableFaixa, []string{"competencia", "faixa", "total"}, faixaRecords},
		{tableUtilizacao, []string{"competencia", "cd_plano", "sg_uf", "sexo", "faixa", "beneficiarios", "eventos", "total"}, utilRecords},
	}

	var paths []string
	for _, tbl := range tables {
		path, err := outputPath(dir, tbl.name, FormatCSV)
		if err != nil {
			return nil, err
		}
		if err := writeCSVTable(path, tbl.header, tbl.records); err != nil {
			return nil, fmt.Errorf("%s: %w", tbl.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeCSVTable(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSONFiles(dump *kpi.Dump, dir string) ([]string, error) {
	tables := []struct {
		name string
		rows any
	}{
		{tableSinistralidade, nonNil(dump.Sinistralidade)},
		{tablePrestador, nonNil(dump.Prestadores)},
		{tableFaixa, nonNil(dump.Faixas)},
		{tableUtilizacao, nonNil(dump.Utilizacao)},
	}

	var paths []string
	for _, tbl := range tables {
		path, err := outputPath(dir, tbl.name, FormatJSON)
		if err != nil {
			return nil, err
		}
		if err := writeJSONTable(path, tbl.rows); err != nil {
			return nil, fmt.Errorf("%s: %w", tbl.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeJSONTable(path string, rows any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode json rows: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// nonNil keeps empty tables encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
