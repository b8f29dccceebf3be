package csvdata

import (
	"time"

	"github.com/filipecarmo81/operadora-bot/internal/competencia"
)

// Row types for the four operator extracts. Fields are pointers because the
// coercion is best-effort: a value that fails to cast becomes nil instead of
// failing the row.

// Beneficiario is one row of beneficiario.csv (the member extract).
type Beneficiario struct {
	ID           *int64
	DtNascimento *time.Time
	Sexo         *string
	UF           *string
	Plano        *string
}

// Prestador is one row of prestador.csv (the provider extract).
type Prestador struct {
	ID        *int64
	Nome      *string
	Categoria *string
}

// Mensalidade is one row of mensalidade.csv (monthly premium billing).
type Mensalidade struct {
	Competencia    *competencia.Competencia
	IDContrato     *int64
	IDBeneficiario *int64
	Premio         *float64
}

// Conta is one row of conta.csv (approved claim amounts).
type Conta struct {
	Competencia    *competencia.Competencia
	IDBeneficiario *int64
	IDPrestador    *int64
	Liberado       *float64
}
