package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/filipecarmo81/operadora-bot/internal/competencia"
	"github.com/filipecarmo81/operadora-bot/internal/csvdata"
	"github.com/filipecarmo81/operadora-bot/internal/kpi"
	"github.com/filipecarmo81/operadora-bot/internal/store"
)

// setupTestStore starts an embedded postgres on a test-only port. Data and
// runtime dirs live under the test tempdir so runs never share state.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	base := t.TempDir()
	st, err := store.Open(context.Background(), store.Config{
		Port:       15441,
		DataDir:    filepath.Join(base, "data"),
		RuntimeDir: filepath.Join(base, "runtime"),
		Logger:     io.Discard,
	})
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Logf("Warning: failed to close test store: %v", err)
		}
	})
	return st
}

func writeExtracts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// goodExtracts is a small but complete load: a BOM on the member file, the
// provider file in latin-1, Brazilian money formats, and one droppable row in
// each period extract.
func goodExtracts() map[string]string {
	return map[string]string{
		csvdata.BeneficiarioFile: "\xef\xbb\xbfid_beneficiario,dt_nascimento,sexo,sg_uf,cd_plano\n" +
			"1,2000-01-15,f,sp,GOLD\n" +
			"2,1990-06-20,M,RJ,SILVER\n",
		csvdata.PrestadorFile: "id_prestador,nm_prestador,ds_categoria\n" +
			"10,Cl\xednica S\xe3o Jo\xe3o,clinica\n" +
			"20,Hospital Azul,hospital\n",
		csvdata.MensalidadeFile: "dt_competencia,id_contrato,id_beneficiario,vl_premio\n" +
			"2025-05-01,900,1,\"1.250,00\"\n" +
			"2025-05-01,901,2,750\n" +
			"not-a-date,902,1,100\n",
		csvdata.ContaFile: "dt_mes_competencia,id_beneficiario,id_prestador,vl_liberado\n" +
			"2025-05-01,1,10,\"300,50\"\n" +
			"2025-05-01,2,20,199.50\n" +
			",2,10,80\n",
	}
}

func TestRunMissingExtracts(t *testing.T) {
	dir := writeExtracts(t, map[string]string{
		csvdata.BeneficiarioFile: "id_beneficiario,dt_nascimento,sexo,sg_uf,cd_plano\n",
		csvdata.PrestadorFile:    "id_prestador,nm_prestador,ds_categoria\n",
	})

	// Missing extracts are detected before the store is touched.
	_, err := New(nil).Run(context.Background(), dir)
	if err == nil {
		t.Fatal("Expected error for missing extracts, got nil")
	}
	for _, name := range []string{csvdata.MensalidadeFile, csvdata.ContaFile} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Error %q does not name missing extract %s", err, name)
		}
	}
}

func TestRunFullPipeline(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	sum, err := New(st.Pool).Run(ctx, writeExtracts(t, goodExtracts()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.BatchID == uuid.Nil {
		t.Error("Expected a batch id, got zero uuid")
	}
	wantFiles := []FileCount{
		{File: csvdata.BeneficiarioFile, Read: 2, Loaded: 2},
		{File: csvdata.PrestadorFile, Read: 2, Loaded: 2},
		{File: csvdata.MensalidadeFile, Read: 3, Loaded: 2, Skipped: 1},
		{File: csvdata.ContaFile, Read: 3, Loaded: 2, Skipped: 1},
	}
	if !reflect.DeepEqual(sum.Files, wantFiles) {
		t.Errorf("File counts = %+v, want %+v", sum.Files, wantFiles)
	}
	if got := sum.TotalSkipped(); got != 2 {
		t.Errorf("TotalSkipped = %d, want 2", got)
	}
	if len(sum.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d: %v", len(sum.Warnings), sum.Warnings)
	}
	if !strings.Contains(sum.Warnings[0], "mensalidade.csv line 4") {
		t.Errorf("Warning = %q, want a mensalidade.csv line 4 reference", sum.Warnings[0])
	}
	if !strings.Contains(sum.Warnings[1], "conta.csv line 4") {
		t.Errorf("Warning = %q, want a conta.csv line 4 reference", sum.Warnings[1])
	}
	wantKPI := map[string]int64{
		"kpi_sinistralidade_mensal": 1,
		"kpi_prestador_custo":       2,
		"kpi_custo_faixa_etaria":    3,
		"kpi_utilizacao":            2,
	}
	if !reflect.DeepEqual(sum.KPIRows, wantKPI) {
		t.Errorf("KPI rows = %v, want %v", sum.KPIRows, wantKPI)
	}

	// Normalized rows landed in the serving schema, uppercased and decoded
	// to UTF-8.
	var sexo, uf string
	err = st.Pool.QueryRow(ctx,
		"SELECT sexo, sg_uf FROM operadora.beneficiario WHERE id_beneficiario = 1").Scan(&sexo, &uf)
	if err != nil {
		t.Fatalf("Failed to read beneficiario: %v", err)
	}
	if sexo != "F" || uf != "SP" {
		t.Errorf("beneficiario 1 = (%q, %q), want (F, SP)", sexo, uf)
	}

	var nome string
	err = st.Pool.QueryRow(ctx,
		"SELECT nm_prestador FROM operadora.prestador WHERE id_prestador = 10").Scan(&nome)
	if err != nil {
		t.Fatalf("Failed to read prestador: %v", err)
	}
	if nome != "Clínica São João" {
		t.Errorf("prestador 10 = %q, want Clínica São João", nome)
	}

	var cargaID string
	var descartadas int64
	err = st.Pool.QueryRow(ctx, "SELECT id::text, descartadas FROM operadora.carga").
		Scan(&cargaID, &descartadas)
	if err != nil {
		t.Fatalf("Failed to read carga: %v", err)
	}
	if cargaID != sum.BatchID.String() {
		t.Errorf("carga id = %s, want %s", cargaID, sum.BatchID)
	}
	if descartadas != 2 {
		t.Errorf("carga descartadas = %d, want 2", descartadas)
	}

	// The published tables answer through the public reader.
	reader := kpi.NewReader(st.Pool)
	ultima, err := reader.UltimaSinistralidade(ctx)
	if err != nil {
		t.Fatalf("UltimaSinistralidade failed: %v", err)
	}
	if ultima.Competencia != "2025-05" {
		t.Errorf("competencia = %s, want 2025-05", ultima.Competencia)
	}
	if ultima.Receita != 2000 || ultima.Sinistro != 500 {
		t.Errorf("receita/sinistro = %v/%v, want 2000/500", ultima.Receita, ultima.Sinistro)
	}
	if ultima.Sinistralidade == nil || *ultima.Sinistralidade != 0.25 {
		t.Errorf("sinistralidade = %v, want 0.25", ultima.Sinistralidade)
	}

	top, err := reader.TopPrestadores(ctx, competencia.Competencia{Year: 2025, Month: time.May}, 10)
	if err != nil {
		t.Fatalf("TopPrestadores failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("Expected 2 providers, got %d", len(top))
	}
	if top[0].Nome == nil || *top[0].Nome != "Clínica São João" || top[0].Total != 300.5 {
		t.Errorf("top provider = %+v, want Clínica São João with 300.5", top[0])
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	dir := writeExtracts(t, goodExtracts())
	reader := kpi.NewReader(st.Pool)

	first, err := New(st.Pool).Run(ctx, dir)
	if err != nil {
		t.Fatalf("First Run failed: %v", err)
	}
	firstDump, err := reader.DumpAll(ctx)
	if err != nil {
		t.Fatalf("DumpAll after first run: %v", err)
	}

	second, err := New(st.Pool).Run(ctx, dir)
	if err != nil {
		t.Fatalf("Second Run failed: %v", err)
	}
	if second.BatchID == first.BatchID {
		t.Error("Expected a fresh batch id per run")
	}

	secondDump, err := reader.DumpAll(ctx)
	if err != nil {
		t.Fatalf("DumpAll after second run: %v", err)
	}
	if !reflect.DeepEqual(firstDump, secondDump) {
		t.Errorf("KPI tables changed across identical loads:\nfirst:  %+v\nsecond: %+v",
			firstDump, secondDump)
	}

	// Each load rebuilds from scratch, so only its own carga row is served.
	var count int64
	var cargaID string
	err = st.Pool.QueryRow(ctx, "SELECT count(*), min(id::text) FROM operadora.carga").
		Scan(&count, &cargaID)
	if err != nil {
		t.Fatalf("Failed to read carga: %v", err)
	}
	if count != 1 {
		t.Errorf("carga rows = %d, want 1", count)
	}
	if cargaID != second.BatchID.String() {
		t.Errorf("carga id = %s, want %s", cargaID, second.BatchID)
	}
}

func TestFailedRunKeepsServingSchema(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	reader := kpi.NewReader(st.Pool)

	if _, err := New(st.Pool).Run(ctx, writeExtracts(t, goodExtracts())); err != nil {
		t.Fatalf("First Run failed: %v", err)
	}

	// Different numbers and a conta file with a broken header: the run fails
	// partway through staging, after mensalidade was already copied.
	bad := goodExtracts()
	bad[csvdata.MensalidadeFile] = "dt_competencia,id_contrato,id_beneficiario,vl_premio\n" +
		"2025-06-01,900,1,9999\n"
	bad[csvdata.ContaFile] = "dt_mes_competencia,id_beneficiario,id_prestador\n" +
		"2025-06-01,1,10\n"

	_, err := New(st.Pool).Run(ctx, writeExtracts(t, bad))
	if err == nil {
		t.Fatal("Expected Run to fail on a broken conta header")
	}
	if !strings.Contains(err.Error(), "vl_liberado") {
		t.Errorf("Error = %q, want missing column vl_liberado", err)
	}

	// Readers still see the first load untouched.
	ultima, err := reader.UltimaSinistralidade(ctx)
	if err != nil {
		t.Fatalf("UltimaSinistralidade after failed run: %v", err)
	}
	if ultima.Competencia != "2025-05" || ultima.Receita != 2000 {
		t.Errorf("Serving data changed after failed run: %+v", ultima)
	}

	// Staging debris from the failure does not block the next good run.
	if _, err := New(st.Pool).Run(ctx, writeExtracts(t, goodExtracts())); err != nil {
		t.Fatalf("Run after failed run: %v", err)
	}
}
