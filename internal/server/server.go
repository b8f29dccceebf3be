// Package server exposes the read-only KPI query API and the static
// dashboard. Handlers are stateless over a shared reader; the store swap
// happening underneath is invisible here.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/filipecarmo81/operadora-bot/internal/competencia"
	"github.com/filipecarmo81/operadora-bot/internal/kpi"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 10 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// KPIReader is the query surface handlers depend on. *kpi.Reader satisfies
// it; tests substitute a fake.
type KPIReader interface {
	UltimaSinistralidade(ctx context.Context) (*kpi.Sinistralidade, error)
	MediaSinistralidade(ctx context.Context, janelaMeses int) (*kpi.SinistralidadeMedia, error)
	TopPrestadores(ctx context.Context, comp competencia.Competencia, top int) ([]kpi.PrestadorCusto, error)
	CustoFaixaEtaria(ctx context.Context, comp competencia.Competencia) (*kpi.CustoFaixaEtaria, error)
	ResumoUtilizacao(ctx context.Context, f kpi.UtilizacaoFiltro) ([]kpi.UtilizacaoResumo, error)
	ContagemTabelas(ctx context.Context) map[string]int64
}

// Server routes KPI queries to the reader. webDir is the static dashboard
// root; empty disables static serving (tests).
type Server struct {
	reader KPIReader
	webDir string
	router *mux.Router
}

func New(reader KPIReader, webDir string) *Server {
	s := &Server{reader: reader, webDir: webDir}
	s.routes()
	return s
}

// Handler returns the configured router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/kpi").Subrouter()
	api.HandleFunc("/sinistralidade/ultima", s.handleUltimaSinistralidade).Methods("GET")
	api.HandleFunc("/sinistralidade/media", s.handleMediaSinistralidade).Methods("GET")
	api.HandleFunc("/prestador/top", s.handleTopPrestadores).Methods("GET")
	api.HandleFunc("/custo/faixa-etaria", s.handleCustoFaixaEtaria).Methods("GET")
	api.HandleFunc("/utilizacao/resumo", s.handleResumoUtilizacao).Methods("GET")

	if s.webDir != "" {
		// Serve static files (strip prefix to prevent path traversal)
		fileServer := http.FileServer(http.Dir(s.webDir))
		router.PathPrefix("/").Handler(http.StripPrefix("/", fileServer))
	}
	s.router = router
}

// corsMiddleware opens the read-only API to browser dashboards on any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves on addr until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Println("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
