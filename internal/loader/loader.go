// Package loader rebuilds the analytical store from the four CSV extracts.
// Normalized tables, KPI materializations and load metadata are all built in
// a staging schema and renamed into serving position in one transaction, so
// readers see either the previous load or the new one, never a mix.
package loader

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/filipecarmo81/operadora-bot/internal/csvdata"
	"github.com/filipecarmo81/operadora-bot/internal/kpi"
)

//go:embed sql/schema.sql
var stagingSchemaSQL string

const (
	stagingSchemaName = "operadora_staging"
	oldSchemaName     = "operadora_old"

	maxWarnings = 20
)

// FileCount tallies one extract's load. Skipped counts rows dropped for an
// unparseable period.
type FileCount struct {
	File    string
	Read    int64
	Loaded  int64
	Skipped int64
}

// Summary reports one load run end to end.
type Summary struct {
	BatchID  uuid.UUID
	Started  time.Time
	Finished time.Time
	Files    []FileCount
	KPIRows  map[string]int64
	Warnings []string
	// WarningsDropped counts warnings beyond the cap.
	WarningsDropped int64
}

// TotalSkipped sums dropped rows across all extracts.
func (s *Summary) TotalSkipped() int64 {
	var n int64
	for _, f := range s.Files {
		n += f.Skipped
	}
	return n
}

func (s *Summary) loadedFor(file string) int64 {
	for _, f := range s.Files {
		if f.File == file {
			return f.Loaded
		}
	}
	return 0
}

// Loader drives one full rebuild of the store.
type Loader struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Loader {
	return &Loader{db: db}
}

// Run loads the four extracts from csvDir, materializes the KPI tables and
// swaps the result into the serving schema. On any error the serving schema
// is left exactly as it was; only staging debris remains, and the next run
// clears it.
func (l *Loader) Run(ctx context.Context, csvDir string) (*Summary, error) {
	extracts := []string{
		csvdata.BeneficiarioFile,
		csvdata.PrestadorFile,
		csvdata.MensalidadeFile,
		csvdata.ContaFile,
	}
	var missing []string
	for _, name := range extracts {
		if _, err := os.Stat(filepath.Join(csvDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing extracts in %s: %s", csvDir, strings.Join(missing, ", "))
	}

	sum := &Summary{BatchID: uuid.New(), Started: time.Now()}
	warns := &warningList{}

	log.Printf("load %s: building staging schema", sum.BatchID)
	if _, err := l.db.Exec(ctx, stagingSchemaSQL); err != nil {
		return nil, fmt.Errorf("build staging schema: %w", err)
	}

	if err := l.loadBeneficiarios(ctx, filepath.Join(csvDir, csvdata.BeneficiarioFile), sum); err != nil {
		return nil, err
	}
	if err := l.loadPrestadores(ctx, filepath.Join(csvDir, csvdata.PrestadorFile), sum); err != nil {
		return nil, err
	}
	if err := l.loadMensalidades(ctx, filepath.Join(csvDir, csvdata.MensalidadeFile), sum, warns); err != nil {
		return nil, err
	}
	if err := l.loadContas(ctx, filepath.Join(csvDir, csvdata.ContaFile), sum, warns); err != nil {
		return nil, err
	}
	sum.Warnings = warns.msgs
	sum.WarningsDropped = warns.dropped

	counts, err := kpi.Materialize(ctx, l.db, stagingSchemaName)
	if err != nil {
		return nil, err
	}
	sum.KPIRows = counts
	for table, n := range counts {
		log.Printf("materialized %s: %d rows", table, n)
	}

	sum.Finished = time.Now()
	if err := l.insertCarga(ctx, sum); err != nil {
		return nil, err
	}

	if err := l.swap(ctx); err != nil {
		return nil, err
	}
	log.Printf("load %s published in %s", sum.BatchID, time.Since(sum.Started).Round(time.Millisecond))
	return sum, nil
}

func (l *Loader) loadBeneficiarios(ctx context.Context, path string, sum *Summary) error {
	start := time.Now()
	r, err := csvdata.NewBeneficiarioReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	src := &beneficiarioSource{r: r}
	loaded, err := l.db.CopyFrom(ctx, pgx.Identifier{stagingSchemaName, "beneficiario"},
		[]string{"id_beneficiario", "dt_nascimento", "sexo", "sg_uf", "cd_plano"}, src)
	if err != nil {
		return fmt.Errorf("copy beneficiario: %w", err)
	}
	sum.Files = append(sum.Files, FileCount{File: csvdata.BeneficiarioFile, Read: src.read, Loaded: loaded})
	log.Printf("loaded %d beneficiario rows in %s", loaded, time.Since(start).Round(time.Millisecond))
	return nil
}

func (l *Loader) loadPrestadores(ctx context.Context, path string, sum *Summary) error {
	start := time.Now()
	r, err := csvdata.NewPrestadorReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	src := &prestadorSource{r: r}
	loaded, err := l.db.CopyFrom(ctx, pgx.Identifier{stagingSchemaName, "prestador"},
		[]string{"id_prestador", "nm_prestador", "ds_categoria"}, src)
	if err != nil {
		return fmt.Errorf("copy prestador: %w", err)
	}
	sum.Files = append(sum.Files, FileCount{File: csvdata.PrestadorFile, Read: src.read, Loaded: loaded})
	log.Printf("loaded %d prestador rows in %s", loaded, time.Since(start).Round(time.Millisecond))
	return nil
}

func (l *Loader) loadMensalidades(ctx context.Context, path string, sum *Summary, warns *warningList) error {
	start := time.Now()
	r, err := csvdata.NewMensalidadeReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	src := &mensalidadeSource{r: r, warns: warns}
	loaded, err := l.db.CopyFrom(ctx, pgx.Identifier{stagingSchemaName, "mensalidade"},
		[]string{"dt_competencia", "id_contrato", "id_beneficiario", "vl_premio"}, src)
	if err != nil {
		return fmt.Errorf("copy mensalidade: %w", err)
	}
	sum.Files = append(sum.Files, FileCount{
		File: csvdata.MensalidadeFile, Read: src.read, Loaded: loaded, Skipped: src.skipped,
	})
	log.Printf("loaded %d mensalidade rows (%d dropped) in %s",
		loaded, src.skipped, time.Since(start).Round(time.Millisecond))
	return nil
}

func (l *Loader) loadContas(ctx context.Context, path string, sum *Summary, warns *warningList) error {
	start := time.Now()
	r, err := csvdata.NewContaReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	src := &contaSource{r: r, warns: warns}
	loaded, err := l.db.CopyFrom(ctx, pgx.Identifier{stagingSchemaName, "conta"},
		[]string{"dt_mes_competencia", "id_beneficiario", "id_prestador", "vl_liberado"}, src)
	if err != nil {
		return fmt.Errorf("copy conta: %w", err)
	}
	sum.Files = append(sum.Files, FileCount{
		File: csvdata.ContaFile, Read: src.read, Loaded: loaded, Skipped: src.skipped,
	})
	log.Printf("loaded %d conta rows (%d dropped) in %s",
		loaded, src.skipped, time.Since(start).Round(time.Millisecond))
	return nil
}

const insertCargaSQL = `
INSERT INTO operadora_staging.carga
  (id, iniciada_em, concluida_em, beneficiarios, prestadores, mensalidades, contas, descartadas)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (l *Loader) insertCarga(ctx context.Context, sum *Summary) error {
	_, err := l.db.Exec(ctx, insertCargaSQL,
		pgtype.UUID{Bytes: sum.BatchID, Valid: true},
		sum.Started,
		sum.Finished,
		sum.loadedFor(csvdata.BeneficiarioFile),
		sum.loadedFor(csvdata.PrestadorFile),
		sum.loadedFor(csvdata.MensalidadeFile),
		sum.loadedFor(csvdata.ContaFile),
		sum.TotalSkipped(),
	)
	if err != nil {
		return fmt.Errorf("insert carga: %w", err)
	}
	return nil
}

// swap publishes the staging schema. The previous serving schema survives one
// generation as operadora_old; postgres transactional DDL makes the rename
// all-or-nothing for concurrent readers.
func (l *Loader) swap(ctx context.Context) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DROP SCHEMA IF EXISTS `+oldSchemaName+` CASCADE`); err != nil {
		return fmt.Errorf("drop old schema: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`, kpi.Schema).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("check serving schema: %w", err)
	}
	if exists {
		if _, err := tx.Exec(ctx, `ALTER SCHEMA `+kpi.Schema+` RENAME TO `+oldSchemaName); err != nil {
			return fmt.Errorf("retire serving schema: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `ALTER SCHEMA `+stagingSchemaName+` RENAME TO `+kpi.Schema); err != nil {
		return fmt.Errorf("publish staging schema: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit swap: %w", err)
	}
	return nil
}
