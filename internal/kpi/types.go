package kpi

import (
	"github.com/filipecarmo81/operadora-bot/internal/competencia"
)

// Response row types. JSON keys keep the Portuguese names the operator's
// consumers already depend on.

// Sinistralidade is one period of the claims-ratio table. Sinistralidade is
// nil when the period had no premium revenue; receita = 0 in the same row is
// the explicit flag for that case.
type Sinistralidade struct {
	Competencia    string   `json:"competencia"`
	Receita        float64  `json:"receita"`
	Sinistro       float64  `json:"sinistro"`
	Sinistralidade *float64 `json:"sinistralidade"`
}

// SinistralidadeMedia summarizes the ratio over the most recent periods.
// Periodos counts the periods in the window; nil-ratio periods stay in the
// count but out of the average.
type SinistralidadeMedia struct {
	JanelaMeses         int      `json:"janela_meses"`
	Periodos            int      `json:"periodos"`
	CompetenciaInicio   string   `json:"competencia_inicio"`
	CompetenciaFim      string   `json:"competencia_fim"`
	SinistralidadeMedia *float64 `json:"sinistralidade_media"`
}

// PrestadorCusto is one provider in a period's cost ranking. IDPrestador and
// Nome are nil for claim lines whose provider could not be resolved.
type PrestadorCusto struct {
	IDPrestador *int64  `json:"id_prestador"`
	Nome        *string `json:"nome"`
	Total       float64 `json:"total"`
}

// FaixaCusto is one age bracket's cost within a period.
type FaixaCusto struct {
	Faixa string  `json:"faixa"`
	Total float64 `json:"total"`
}

// CustoFaixaEtaria carries the fixed three-bracket partition of a period's
// claim cost. TotalSemFaixa is the cost of claims whose beneficiary birth
// date is unknown; Faixas always holds 0-18, 19-59, 60+ in that order.
type CustoFaixaEtaria struct {
	Competencia   string       `json:"competencia"`
	Faixas        []FaixaCusto `json:"faixas"`
	TotalSemFaixa float64      `json:"total_sem_faixa"`
}

// UtilizacaoFiltro restricts the utilization summary. Zero values leave the
// corresponding dimension unrestricted.
type UtilizacaoFiltro struct {
	Competencia *competencia.Competencia
	Plano       string
	UF          string
	Sexo        string
	Faixa       string
}

// UtilizacaoResumo is one aggregated row of the utilization table: a period ×
// dimension combination with its distinct members, claim events and cost.
// Empty dimension strings mean the value was absent from the member extract.
type UtilizacaoResumo struct {
	Competencia   string  `json:"competencia"`
	Plano         string  `json:"cd_plano"`
	UF            string  `json:"sg_uf"`
	Sexo          string  `json:"sexo"`
	Faixa         string  `json:"faixa"`
	Beneficiarios int64   `json:"beneficiarios"`
	Eventos       int64   `json:"eventos"`
	Total         float64 `json:"total"`
}

// PrestadorCustoRow is a full-table dump row (export); unlike PrestadorCusto
// it carries its period.
type PrestadorCustoRow struct {
	Competencia string  `json:"competencia"`
	IDPrestador *int64  `json:"id_prestador"`
	Nome        *string `json:"nome"`
	Total       float64 `json:"total"`
}

// FaixaCustoRow is a full-table dump row of the age-bracket table.
type FaixaCustoRow struct {
	Competencia string  `json:"competencia"`
	Faixa       string  `json:"faixa"`
	Total       float64 `json:"total"`
}

// Dump holds every materialized KPI table, in stable order, for export.
type Dump struct {
	Sinistralidade []Sinistralidade
	Prestadores    []PrestadorCustoRow
	Faixas         []FaixaCustoRow
	Utilizacao     []UtilizacaoResumo
}
