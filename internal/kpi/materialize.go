package kpi

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Materialization SQL. Every statement is instantiated against a target
// schema (%[1]s): the loader builds into operadora_staging and the finished
// schema is renamed into place, so these never touch the serving tables.

// One row per billing period: premium revenue x approved claim cost.
// sinistralidade stays NULL when the period has no revenue; receita = 0 in
// the same row flags that case to consumers.
const createSinistralidadeSQL = `
CREATE TABLE %[1]s.kpi_sinistralidade_mensal AS
WITH
receita AS (
  SELECT dt_competencia AS competencia, SUM(vl_premio) AS receita
  FROM %[1]s.mensalidade
  GROUP BY dt_competencia
),
sinistro AS (
  SELECT dt_mes_competencia AS competencia, SUM(vl_liberado) AS sinistro
  FROM %[1]s.conta
  GROUP BY dt_mes_competencia
)
SELECT
  COALESCE(r.competencia, s.competencia)   AS competencia,
  COALESCE(r.receita, 0)::numeric(14,2)    AS receita,
  COALESCE(s.sinistro, 0)::numeric(14,2)   AS sinistro,
  CASE
    WHEN COALESCE(r.receita, 0) = 0 THEN NULL
    ELSE (COALESCE(s.sinistro, 0) / r.receita)::numeric(12,6)
  END AS sinistralidade
FROM receita r
FULL OUTER JOIN sinistro s ON s.competencia = r.competencia
`

// Cost per period x provider. No limit here: the query side truncates, so
// one materialization serves any top-N.
const createPrestadorCustoSQL = `
CREATE TABLE %[1]s.kpi_prestador_custo AS
WITH
prest AS (
  -- the provider extract may repeat ids; keep one name per id
  SELECT DISTINCT ON (id_prestador) id_prestador, nm_prestador
  FROM %[1]s.prestador
  WHERE id_prestador IS NOT NULL
  ORDER BY id_prestador
)
SELECT
  c.dt_mes_competencia                           AS competencia,
  c.id_prestador,
  p.nm_prestador,
  COALESCE(SUM(c.vl_liberado), 0)::numeric(14,2) AS total
FROM %[1]s.conta c
LEFT JOIN prest p ON p.id_prestador = c.id_prestador
GROUP BY c.dt_mes_competencia, c.id_prestador, p.nm_prestador
`

// Claim cost partitioned into the three fixed age brackets, zero-filled so
// every period with claims carries exactly three rows. Age is taken at the
// first day of the claim period. Claims without a resolvable birth date are
// left out here; the query side surfaces them as total_sem_faixa.
const createCustoFaixaSQL = `
CREATE TABLE %[1]s.kpi_custo_faixa_etaria AS
WITH
benef AS (
  SELECT DISTINCT ON (id_beneficiario) id_beneficiario, dt_nascimento
  FROM %[1]s.beneficiario
  WHERE id_beneficiario IS NOT NULL
  ORDER BY id_beneficiario
),
faixas (faixa, ordem) AS (
  VALUES ('0-18', 1), ('19-59', 2), ('60+', 3)
),
custo AS (
  SELECT
    c.dt_mes_competencia AS competencia,
    CASE
      WHEN date_part('year', age(c.dt_mes_competencia, b.dt_nascimento)) <= 18 THEN '0-18'
      WHEN date_part('year', age(c.dt_mes_competencia, b.dt_nascimento)) <= 59 THEN '19-59'
      ELSE '60+'
    END AS faixa,
    SUM(c.vl_liberado) AS total
  FROM %[1]s.conta c
  JOIN benef b ON b.id_beneficiario = c.id_beneficiario
  WHERE b.dt_nascimento IS NOT NULL
  GROUP BY 1, 2
),
periodos AS (
  SELECT DISTINCT dt_mes_competencia AS competencia FROM %[1]s.conta
)
SELECT
  p.competencia,
  f.faixa,
  f.ordem,
  COALESCE(cu.total, 0)::numeric(14,2) AS total
FROM periodos p
CROSS JOIN faixas f
LEFT JOIN custo cu ON cu.competencia = p.competencia AND cu.faixa = f.faixa
`

// Utilization grain: period x plan x UF x sex x age bracket. Unknown
// dimension values become '' so filters can still address those rows.
const createUtilizacaoSQL = `
CREATE TABLE %[1]s.kpi_utilizacao AS
WITH
benef AS (
  SELECT DISTINCT ON (id_beneficiario)
    id_beneficiario, dt_nascimento, sexo, sg_uf, cd_plano
  FROM %[1]s.beneficiario
  WHERE id_beneficiario IS NOT NULL
  ORDER BY id_beneficiario
)
SELECT
  c.dt_mes_competencia                           AS competencia,
  COALESCE(b.cd_plano, '')                       AS cd_plano,
  COALESCE(b.sg_uf, '')                          AS sg_uf,
  COALESCE(b.sexo, '')                           AS sexo,
  CASE
    WHEN b.dt_nascimento IS NULL THEN ''
    WHEN date_part('year', age(c.dt_mes_competencia, b.dt_nascimento)) <= 18 THEN '0-18'
    WHEN date_part('year', age(c.dt_mes_competencia, b.dt_nascimento)) <= 59 THEN '19-59'
    ELSE '60+'
  END                                            AS faixa,
  COUNT(DISTINCT c.id_beneficiario)              AS beneficiarios,
  COUNT(*)                                       AS eventos,
  COALESCE(SUM(c.vl_liberado), 0)::numeric(14,2) AS total
FROM %[1]s.conta c
LEFT JOIN benef b ON b.id_beneficiario = c.id_beneficiario
GROUP BY 1, 2, 3, 4, 5
`

const createKPIIndexesSQL = `
CREATE INDEX ON %[1]s.kpi_sinistralidade_mensal (competencia);
CREATE INDEX ON %[1]s.kpi_prestador_custo (competencia);
CREATE INDEX ON %[1]s.kpi_custo_faixa_etaria (competencia);
CREATE INDEX ON %[1]s.kpi_utilizacao (competencia);
`

// Materialize rebuilds the four KPI tables inside schema from its normalized
// tables and returns the row count written per table. The result depends only
// on the normalized input, so re-running a load yields identical KPI rows.
func Materialize(ctx context.Context, db *pgxpool.Pool, schema string) (map[string]int64, error) {
	steps := []struct {
		table string
		sql   string
	}{
		{"kpi_sinistralidade_mensal", createSinistralidadeSQL},
		{"kpi_prestador_custo", createPrestadorCustoSQL},
		{"kpi_custo_faixa_etaria", createCustoFaixaSQL},
		{"kpi_utilizacao", createUtilizacaoSQL},
	}

	counts := make(map[string]int64, len(steps))
	for _, step := range steps {
		tag, err := db.Exec(ctx, fmt.Sprintf(step.sql, schema))
		if err != nil {
			return nil, fmt.Errorf("materialize %s: %w", step.table, err)
		}
		counts[step.table] = tag.RowsAffected()
	}

	if _, err := db.Exec(ctx, fmt.Sprintf(createKPIIndexesSQL, schema)); err != nil {
		return nil, fmt.Errorf("index kpi tables: %w", err)
	}
	return counts, nil
}
