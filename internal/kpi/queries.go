// Package kpi materializes and serves the operator's monthly indicators:
// claims ratio, provider cost ranking, age-bracket cost and utilization.
package kpi

import (
	"context"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/filipecarmo81/operadora-bot/internal/competencia"
)

// Schema is the serving schema every read goes against. The loader builds a
// staging schema and renames it to this.
const Schema = "operadora"

// ErrNoData marks queries whose subject does not exist: an empty KPI table,
// an absent period, or a store no load has ever populated.
var ErrNoData = errors.New("no data for query")

const (
	pgUndefinedTable    = "42P01"
	pgInvalidSchemaName = "3F000"
)

// mapQueryErr folds "nothing loaded yet" postgres errors into ErrNoData and
// wraps everything else with the operation name.
func mapQueryErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoData
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgUndefinedTable || pgErr.Code == pgInvalidSchemaName) {
		return ErrNoData
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Reader answers every KPI read. It holds no state beyond the pool; handlers
// share one instance across requests.
type Reader struct {
	db *pgxpool.Pool
}

func NewReader(db *pgxpool.Pool) *Reader {
	return &Reader{db: db}
}

const ultimaSinistralidadeSQL = `
SELECT to_char(competencia, 'YYYY-MM'),
       receita::float8,
       sinistro::float8,
       sinistralidade::float8
FROM ` + Schema + `.kpi_sinistralidade_mensal
ORDER BY competencia DESC
LIMIT 1
`

// UltimaSinistralidade returns the most recent period's ratio row.
func (r *Reader) UltimaSinistralidade(ctx context.Context) (*Sinistralidade, error) {
	var s Sinistralidade
	err := r.db.QueryRow(ctx, ultimaSinistralidadeSQL).
		Scan(&s.Competencia, &s.Receita, &s.Sinistro, &s.Sinistralidade)
	if err != nil {
		return nil, mapQueryErr("query ultima sinistralidade", err)
	}
	return &s, nil
}

const mediaSinistralidadeSQL = `
SELECT count(*),
       to_char(min(competencia), 'YYYY-MM'),
       to_char(max(competencia), 'YYYY-MM'),
       avg(sinistralidade)::float8
FROM (
  SELECT competencia, sinistralidade
  FROM ` + Schema + `.kpi_sinistralidade_mensal
  ORDER BY competencia DESC
  LIMIT $1
) ultimos
`

// MediaSinistralidade averages the ratio over the most recent janelaMeses
// periods. Fewer stored periods than requested is fine; NULL ratios stay in
// the period count but out of the average.
func (r *Reader) MediaSinistralidade(ctx context.Context, janelaMeses int) (*SinistralidadeMedia, error) {
	m := SinistralidadeMedia{JanelaMeses: janelaMeses}
	var inicio, fim *string
	err := r.db.QueryRow(ctx, mediaSinistralidadeSQL, janelaMeses).
		Scan(&m.Periodos, &inicio, &fim, &m.SinistralidadeMedia)
	if err != nil {
		return nil, mapQueryErr("query media sinistralidade", err)
	}
	if m.Periodos == 0 {
		return nil, ErrNoData
	}
	m.CompetenciaInicio = *inicio
	m.CompetenciaFim = *fim
	return &m, nil
}

const topPrestadoresSQL = `
SELECT id_prestador, nm_prestador, total::float8
FROM ` + Schema + `.kpi_prestador_custo
WHERE competencia = $1
ORDER BY total DESC, id_prestador ASC
LIMIT $2
`

// TopPrestadores ranks providers by approved cost within one period, most
// expensive first, id ascending on ties. ErrNoData when the period has no
// claims at all.
func (r *Reader) TopPrestadores(ctx context.Context, comp competencia.Competencia, top int) ([]PrestadorCusto, error) {
	rows, err := r.db.Query(ctx, topPrestadoresSQL, comp.Time(), top)
	if err != nil {
		return nil, mapQueryErr("query top prestadores", err)
	}
	defer rows.Close()

	var out []PrestadorCusto
	for rows.Next() {
		var p PrestadorCusto
		if err := rows.Scan(&p.IDPrestador, &p.Nome, &p.Total); err != nil {
			return nil, fmt.Errorf("scan prestador: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapQueryErr("read top prestadores", err)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

const custoFaixaSQL = `
SELECT faixa, total::float8
FROM ` + Schema + `.kpi_custo_faixa_etaria
WHERE competencia = $1
ORDER BY ordem
`

const sinistroPeriodoSQL = `
SELECT sinistro::float8
FROM ` + Schema + `.kpi_sinistralidade_mensal
WHERE competencia = $1
`

// CustoFaixaEtaria returns the period's three bracket rows plus the cost that
// could not be bracketed (unknown beneficiary or birth date), derived as the
// period's total claim cost minus the bracket sum.
func (r *Reader) CustoFaixaEtaria(ctx context.Context, comp competencia.Competencia) (*CustoFaixaEtaria, error) {
	rows, err := r.db.Query(ctx, custoFaixaSQL, comp.Time())
	if err != nil {
		return nil, mapQueryErr("query custo por faixa", err)
	}
	defer rows.Close()

	var faixas []FaixaCusto
	var bracketSum float64
	for rows.Next() {
		var f FaixaCusto
		if err := rows.Scan(&f.Faixa, &f.Total); err != nil {
			return nil, fmt.Errorf("scan faixa: %w", err)
		}
		bracketSum += f.Total
		faixas = append(faixas, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapQueryErr("read custo por faixa", err)
	}
	if len(faixas) == 0 {
		return nil, ErrNoData
	}

	var periodoTotal float64
	err = r.db.QueryRow(ctx, sinistroPeriodoSQL, comp.Time()).Scan(&periodoTotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			periodoTotal = bracketSum
		} else {
			return nil, mapQueryErr("query sinistro do periodo", err)
		}
	}

	semFaixa := round2(periodoTotal - bracketSum)
	if semFaixa < 0 {
		// float residue from the subtraction
		semFaixa = 0
	}
	return &CustoFaixaEtaria{
		Competencia:   comp.String(),
		Faixas:        faixas,
		TotalSemFaixa: semFaixa,
	}, nil
}

// ResumoUtilizacao returns the utilization rows matching the filter. An empty
// result is a valid answer, not ErrNoData: a narrow filter yielding nothing
// is data.
func (r *Reader) ResumoUtilizacao(ctx context.Context, f UtilizacaoFiltro) ([]UtilizacaoResumo, error) {
	qb := sq.Select(
		"to_char(competencia, 'YYYY-MM')",
		"cd_plano", "sg_uf", "sexo", "faixa",
		"beneficiarios", "eventos", "total::float8",
	).
		From(Schema + ".kpi_utilizacao").
		OrderBy("competencia", "cd_plano", "sg_uf", "sexo", "faixa").
		PlaceholderFormat(sq.Dollar)

	if f.Competencia != nil {
		qb = qb.Where(sq.Eq{"competencia": f.Competencia.Time()})
	}
	if f.Plano != "" {
		qb = qb.Where(sq.Eq{"cd_plano": f.Plano})
	}
	if f.UF != "" {
		qb = qb.Where(sq.Eq{"sg_uf": f.UF})
	}
	if f.Sexo != "" {
		qb = qb.Where(sq.Eq{"sexo": f.Sexo})
	}
	if f.Faixa != "" {
		qb = qb.Where(sq.Eq{"faixa": f.Faixa})
	}

	sql, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build utilizacao query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapQueryErr("query resumo utilizacao", err)
	}
	defer rows.Close()

	out := []UtilizacaoResumo{}
	for rows.Next() {
		var u UtilizacaoResumo
		if err := rows.Scan(&u.Competencia, &u.Plano, &u.UF, &u.Sexo, &u.Faixa,
			&u.Beneficiarios, &u.Eventos, &u.Total); err != nil {
			return nil, fmt.Errorf("scan utilizacao: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapQueryErr("read resumo utilizacao", err)
	}
	return out, nil
}

// healthTables are the serving tables the health endpoint counts, normalized
// extracts first, derived tables after.
var healthTables = []string{
	"beneficiario", "prestador", "mensalidade", "conta", "carga",
	"kpi_sinistralidade_mensal", "kpi_prestador_custo",
	"kpi_custo_faixa_etaria", "kpi_utilizacao",
}

// ContagemTabelas counts rows per serving table. A table that cannot be
// counted reports -1 instead of failing the call; health stays answerable
// even before the first load.
func (r *Reader) ContagemTabelas(ctx context.Context) map[string]int64 {
	counts := make(map[string]int64, len(healthTables))
	for _, table := range healthTables {
		var n int64
		if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s.%s", Schema, table)).Scan(&n); err != nil {
			counts[table] = -1
			continue
		}
		counts[table] = n
	}
	return counts
}

const dumpSinistralidadeSQL = `
SELECT to_char(competencia, 'YYYY-MM'),
       receita::float8,
       sinistro::float8,
       sinistralidade::float8
FROM ` + Schema + `.kpi_sinistralidade_mensal
ORDER BY competencia
`

const dumpPrestadoresSQL = `
SELECT to_char(competencia, 'YYYY-MM'), id_prestador, nm_prestador, total::float8
FROM ` + Schema + `.kpi_prestador_custo
ORDER BY competencia, total DESC, id_prestador
`

const dumpFaixasSQL = `
SELECT to_char(competencia, 'YYYY-MM'), faixa, total::float8
FROM ` + Schema + `.kpi_custo_faixa_etaria
ORDER BY competencia, ordem
`

// DumpAll reads every KPI table in stable order, for export.
func (r *Reader) DumpAll(ctx context.Context) (*Dump, error) {
	var d Dump

	rows, err := r.db.Query(ctx, dumpSinistralidadeSQL)
	if err != nil {
		return nil, mapQueryErr("dump sinistralidade", err)
	}
	for rows.Next() {
		var s Sinistralidade
		if err := rows.Scan(&s.Competencia, &s.Receita, &s.Sinistro, &s.Sinistralidade); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sinistralidade: %w", err)
		}
		d.Sinistralidade = append(d.Sinistralidade, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapQueryErr("dump sinistralidade", err)
	}

	rows, err = r.db.Query(ctx, dumpPrestadoresSQL)
	if err != nil {
		return nil, mapQueryErr("dump prestadores", err)
	}
	for rows.Next() {
		var p PrestadorCustoRow
		if err := rows.Scan(&p.Competencia, &p.IDPrestador, &p.Nome, &p.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan prestador: %w", err)
		}
		d.Prestadores = append(d.Prestadores, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapQueryErr("dump prestadores", err)
	}

	rows, err = r.db.Query(ctx, dumpFaixasSQL)
	if err != nil {
		return nil, mapQueryErr("dump faixas", err)
	}
	for rows.Next() {
		var f FaixaCustoRow
		if err := rows.Scan(&f.Competencia, &f.Faixa, &f.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan faixa: %w", err)
		}
		d.Faixas = append(d.Faixas, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapQueryErr("dump faixas", err)
	}

	d.Utilizacao, err = r.ResumoUtilizacao(ctx, UtilizacaoFiltro{})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
