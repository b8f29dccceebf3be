package loader

import (
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/filipecarmo81/operadora-bot/internal/competencia"
	"github.com/filipecarmo81/operadora-bot/internal/csvdata"
)

// CopyFrom source adapters: each wraps an extract reader so rows stream
// straight from the CSV into COPY without buffering the file. The period
// sources additionally drop rows whose period failed to parse, since the
// staging period columns are NOT NULL.

type beneficiarioSource struct {
	r    *csvdata.BeneficiarioReader
	cur  *csvdata.Beneficiario
	err  error
	read int64
}

func (s *beneficiarioSource) Next() bool {
	b, err := s.r.Next()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.read++
	s.cur = b
	return true
}

func (s *beneficiarioSource) Values() ([]any, error) {
	return []any{
		toInt8(s.cur.ID),
		toDate(s.cur.DtNascimento),
		toText(s.cur.Sexo),
		toText(s.cur.UF),
		toText(s.cur.Plano),
	}, nil
}

func (s *beneficiarioSource) Err() error { return s.err }

type prestadorSource struct {
	r    *csvdata.PrestadorReader
	cur  *csvdata.Prestador
	err  error
	read int64
}

func (s *prestadorSource) Next() bool {
	p, err := s.r.Next()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.read++
	s.cur = p
	return true
}

func (s *prestadorSource) Values() ([]any, error) {
	return []any{
		toInt8(s.cur.ID),
		toText(s.cur.Nome),
		toText(s.cur.Categoria),
	}, nil
}

func (s *prestadorSource) Err() error { return s.err }

type mensalidadeSource struct {
	r       *csvdata.MensalidadeReader
	cur     *csvdata.Mensalidade
	err     error
	read    int64
	skipped int64
	warns   *warningList
}

func (s *mensalidadeSource) Next() bool {
	for {
		m, err := s.r.Next()
		if err == io.EOF {
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		s.read++
		if m.Competencia == nil {
			s.skipped++
			s.warns.addf("%s line %d: dt_competencia unparseable, row dropped",
				csvdata.MensalidadeFile, s.r.RowNum())
			continue
		}
		s.cur = m
		return true
	}
}

func (s *mensalidadeSource) Values() ([]any, error) {
	return []any{
		compToDate(s.cur.Competencia),
		toInt8(s.cur.IDContrato),
		toInt8(s.cur.IDBeneficiario),
		toNumeric(s.cur.Premio),
	}, nil
}

func (s *mensalidadeSource) Err() error { return s.err }

type contaSource struct {
	r       *csvdata.ContaReader
	cur     *csvdata.Conta
	err     error
	read    int64
	skipped int64
	warns   *warningList
}

func (s *contaSource) Next() bool {
	for {
		c, err := s.r.Next()
		if err == io.EOF {
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		s.read++
		if c.Competencia == nil {
			s.skipped++
			s.warns.addf("%s line %d: dt_mes_competencia unparseable, row dropped",
				csvdata.ContaFile, s.r.RowNum())
			continue
		}
		s.cur = c
		return true
	}
}

func (s *contaSource) Values() ([]any, error) {
	return []any{
		compToDate(s.cur.Competencia),
		toInt8(s.cur.IDBeneficiario),
		toInt8(s.cur.IDPrestador),
		toNumeric(s.cur.Liberado),
	}, nil
}

func (s *contaSource) Err() error { return s.err }

// warningList caps accumulated load warnings so a pathological file cannot
// balloon the summary.
type warningList struct {
	msgs    []string
	dropped int64
}

func (w *warningList) addf(format string, args ...any) {
	if len(w.msgs) >= maxWarnings {
		w.dropped++
		return
	}
	w.msgs = append(w.msgs, fmt.Sprintf(format, args...))
}

// pgtype helpers

func toNumeric(f *float64) pgtype.Numeric {
	if f == nil {
		return pgtype.Numeric{Valid: false}
	}
	text := big.NewFloat(*f).Text('f', -1)
	var num pgtype.Numeric
	num.Scan(text)
	return num
}

func toText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func toDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func toInt8(n *int64) pgtype.Int8 {
	if n == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: *n, Valid: true}
}

func compToDate(c *competencia.Competencia) pgtype.Date {
	if c == nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: c.Time(), Valid: true}
}
