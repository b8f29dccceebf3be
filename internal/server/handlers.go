package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/filipecarmo81/operadora-bot/internal/competencia"
	"github.com/filipecarmo81/operadora-bot/internal/httpx"
	"github.com/filipecarmo81/operadora-bot/internal/kpi"
)

// Window and limit defaults and caps follow the operator's existing API
// contract.
const (
	defaultJanelaMeses = 12
	maxJanelaMeses     = 60
	defaultTop         = 10
	maxTop             = 100
)

var validFaixas = map[string]bool{"0-18": true, "19-59": true, "60+": true}

type healthResponse struct {
	Status  string           `json:"status"`
	Tabelas map[string]int64 `json:"tabelas"`
}

type prestadorTopResponse struct {
	Competencia string               `json:"competencia"`
	Top         []kpi.PrestadorCusto `json:"top"`
}

type utilizacaoResponse struct {
	Filtros map[string]string      `json:"filtros"`
	Resumo  []kpi.UtilizacaoResumo `json:"resumo"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Tabelas: s.reader.ContagemTabelas(r.Context()),
	})
}

func (s *Server) handleUltimaSinistralidade(w http.ResponseWriter, r *http.Request) {
	row, err := s.reader.UltimaSinistralidade(r.Context())
	if err != nil {
		s.respondQueryError(w, err, "no sinistralidade data available")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, row)
}

func (s *Server) handleMediaSinistralidade(w http.ResponseWriter, r *http.Request) {
	janela, ok := parseBoundedInt(w, r, "janela_meses", defaultJanelaMeses, 1, maxJanelaMeses)
	if !ok {
		return
	}
	media, err := s.reader.MediaSinistralidade(r.Context(), janela)
	if err != nil {
		s.respondQueryError(w, err, "no sinistralidade data available")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, media)
}

func (s *Server) handleTopPrestadores(w http.ResponseWriter, r *http.Request) {
	comp, ok := parseCompetenciaParam(w, r, true)
	if !ok {
		return
	}
	top, ok := parseBoundedInt(w, r, "top", defaultTop, 1, maxTop)
	if !ok {
		return
	}
	rows, err := s.reader.TopPrestadores(r.Context(), *comp, top)
	if err != nil {
		s.respondQueryError(w, err, "competencia "+comp.String()+" not found")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, prestadorTopResponse{
		Competencia: comp.String(),
		Top:         rows,
	})
}

func (s *Server) handleCustoFaixaEtaria(w http.ResponseWriter, r *http.Request) {
	comp, ok := parseCompetenciaParam(w, r, true)
	if !ok {
		return
	}
	res, err := s.reader.CustoFaixaEtaria(r.Context(), *comp)
	if err != nil {
		s.respondQueryError(w, err, "competencia "+comp.String()+" not found")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, res)
}

func (s *Server) handleResumoUtilizacao(w http.ResponseWriter, r *http.Request) {
	comp, ok := parseCompetenciaParam(w, r, false)
	if !ok {
		return
	}
	q := r.URL.Query()
	faixa := q.Get("faixa")
	if faixa != "" && !validFaixas[faixa] {
		httpx.RespondErrorString(w, http.StatusBadRequest,
			"faixa must be one of 0-18, 19-59, 60+")
		return
	}

	// sexo and sg_uf were uppercased at load; match filters the same way
	filtro := kpi.UtilizacaoFiltro{
		Competencia: comp,
		Plano:       q.Get("cd_plano"),
		UF:          strings.ToUpper(q.Get("sg_uf")),
		Sexo:        strings.ToUpper(q.Get("sexo")),
		Faixa:       faixa,
	}

	rows, err := s.reader.ResumoUtilizacao(r.Context(), filtro)
	if err != nil {
		s.respondQueryError(w, err, "no utilizacao data available")
		return
	}

	filtros := map[string]string{}
	if comp != nil {
		filtros["competencia"] = comp.String()
	}
	if filtro.Plano != "" {
		filtros["cd_plano"] = filtro.Plano
	}
	if filtro.UF != "" {
		filtros["sg_uf"] = filtro.UF
	}
	if filtro.Sexo != "" {
		filtros["sexo"] = filtro.Sexo
	}
	if filtro.Faixa != "" {
		filtros["faixa"] = filtro.Faixa
	}
	httpx.RespondJSON(w, http.StatusOK, utilizacaoResponse{Filtros: filtros, Resumo: rows})
}

// respondQueryError maps reader errors onto the API taxonomy: missing data is
// 404 with a specific message, anything else is logged and returned as a
// generic 500.
func (s *Server) respondQueryError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, kpi.ErrNoData) {
		httpx.RespondErrorString(w, http.StatusNotFound, notFoundMsg)
		return
	}
	log.Printf("query failed: %v", err)
	httpx.RespondErrorString(w, http.StatusInternalServerError, "internal error")
}

// parseCompetenciaParam reads and validates the competencia query parameter.
// A missing parameter is an error only when required; a malformed one is
// always a 400.
func parseCompetenciaParam(w http.ResponseWriter, r *http.Request, required bool) (*competencia.Competencia, bool) {
	v := r.URL.Query().Get("competencia")
	if v == "" {
		if required {
			httpx.RespondErrorString(w, http.StatusBadRequest, "competencia is required (YYYY-MM)")
			return nil, false
		}
		return nil, true
	}
	c, err := competencia.Parse(v)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return &c, true
}

func parseBoundedInt(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		httpx.RespondErrorString(w, http.StatusBadRequest,
			fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi))
		return 0, false
	}
	return n, true
}
