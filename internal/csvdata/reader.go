// Package csvdata streams the four operator CSV extracts with best-effort
// type coercion: unparseable values become nil, never a row error.
package csvdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/filipecarmo81/operadora-bot/internal/competencia"
)

// Fixed extract file names inside the CSV directory.
const (
	BeneficiarioFile = "beneficiario.csv"
	PrestadorFile    = "prestador.csv"
	MensalidadeFile  = "mensalidade.csv"
	ContaFile        = "conta.csv"
)

const sniffBytes = 64 * 1024

// rowReader is the shared streaming core for the four extract readers:
// buffered I/O, BOM skip, encoding sniff, header index, empty-row skip.
type rowReader struct {
	name   string
	file   *os.File
	reader *csv.Reader
	colIdx map[string]int
	rowNum int64
}

func openRowReader(path string, required []string) (*rowReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open extract: %w", err)
	}

	bufReader := bufio.NewReaderSize(file, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	reader := csv.NewReader(decodingReader(bufReader))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Variable fields

	rr := &rowReader{
		name:   path,
		file:   file,
		reader: reader,
		colIdx: make(map[string]int),
	}

	headers, err := rr.reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: failed to read header row: %w", rr.name, err)
	}
	rr.rowNum++

	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "﻿")))
		rr.colIdx[h] = i
	}

	var missing []string
	for _, col := range required {
		if _, ok := rr.colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		file.Close()
		return nil, fmt.Errorf("%s: missing required columns: %s", rr.name, strings.Join(missing, ", "))
	}

	return rr, nil
}

// decodingReader sniffs the stream prefix: valid UTF-8 passes through, anything
// else is decoded as ISO-8859-1 (the original extracts ship in latin-1).
func decodingReader(br *bufio.Reader) io.Reader {
	peek, _ := br.Peek(sniffBytes)
	if len(peek) == sniffBytes {
		// A multi-byte rune split at the peek boundary must not force latin-1
		for i := 0; i < utf8.UTFMax-1 && len(peek) > 0 && !utf8.Valid(peek); i++ {
			peek = peek[:len(peek)-1]
		}
	}
	if utf8.Valid(peek) {
		return br
	}
	return transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
}

// next returns the next non-empty data row, io.EOF when exhausted.
func (rr *rowReader) next() ([]string, error) {
	for {
		row, err := rr.reader.Read()
		if err != nil {
			return nil, err
		}
		rr.rowNum++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		return row, nil
	}
}

func (rr *rowReader) field(row []string, col string) string {
	if idx, ok := rr.colIdx[col]; ok && idx < len(row) {
		return row[idx]
	}
	return ""
}

// RowNum returns the current row number (1-based, header included).
func (rr *rowReader) RowNum() int64 {
	return rr.rowNum
}

// Close closes the underlying file
func (rr *rowReader) Close() error {
	if rr.file != nil {
		return rr.file.Close()
	}
	return nil
}

// BeneficiarioReader streams beneficiario.csv.
type BeneficiarioReader struct {
	*rowReader
}

func NewBeneficiarioReader(path string) (*BeneficiarioReader, error) {
	rr, err := openRowReader(path, []string{"id_beneficiario", "dt_nascimento", "sexo", "sg_uf", "cd_plano"})
	if err != nil {
		return nil, err
	}
	return &BeneficiarioReader{rr}, nil
}

// Next returns the next member row, io.EOF when the file is exhausted.
func (br *BeneficiarioReader) Next() (*Beneficiario, error) {
	row, err := br.next()
	if err != nil {
		return nil, err
	}
	return &Beneficiario{
		ID:           parseID(br.field(row, "id_beneficiario")),
		DtNascimento: parseDate(br.field(row, "dt_nascimento")),
		Sexo:         parseUpper(br.field(row, "sexo")),
		UF:           parseUpper(br.field(row, "sg_uf")),
		Plano:        parseText(br.field(row, "cd_plano")),
	}, nil
}

// PrestadorReader streams prestador.csv.
type PrestadorReader struct {
	*rowReader
}

func NewPrestadorReader(path string) (*PrestadorReader, error) {
	rr, err := openRowReader(path, []string{"id_prestador", "nm_prestador", "ds_categoria"})
	if err != nil {
		return nil, err
	}
	return &PrestadorReader{rr}, nil
}

func (pr *PrestadorReader) Next() (*Prestador, error) {
	row, err := pr.next()
	if err != nil {
		return nil, err
	}
	return &Prestador{
		ID:        parseID(pr.field(row, "id_prestador")),
		Nome:      parseText(pr.field(row, "nm_prestador")),
		Categoria: parseText(pr.field(row, "ds_categoria")),
	}, nil
}

// MensalidadeReader streams mensalidade.csv.
type MensalidadeReader struct {
	*rowReader
}

func NewMensalidadeReader(path string) (*MensalidadeReader, error) {
	rr, err := openRowReader(path, []string{"dt_competencia", "id_contrato", "id_beneficiario", "vl_premio"})
	if err != nil {
		return nil, err
	}
	return &MensalidadeReader{rr}, nil
}

func (mr *MensalidadeReader) Next() (*Mensalidade, error) {
	row, err := mr.next()
	if err != nil {
		return nil, err
	}
	return &Mensalidade{
		Competencia:    parseCompetencia(mr.field(row, "dt_competencia")),
		IDContrato:     parseID(mr.field(row, "id_contrato")),
		IDBeneficiario: parseID(mr.field(row, "id_beneficiario")),
		Premio:         parseMoney(mr.field(row, "vl_premio")),
	}, nil
}

// ContaReader streams conta.csv.
type ContaReader struct {
	*rowReader
}

func NewContaReader(path string) (*ContaReader, error) {
	rr, err := openRowReader(path, []string{"dt_mes_competencia", "id_beneficiario", "id_prestador", "vl_liberado"})
	if err != nil {
		return nil, err
	}
	return &ContaReader{rr}, nil
}

func (cr *ContaReader) Next() (*Conta, error) {
	row, err := cr.next()
	if err != nil {
		return nil, err
	}
	return &Conta{
		Competencia:    parseCompetencia(cr.field(row, "dt_mes_competencia")),
		IDBeneficiario: parseID(cr.field(row, "id_beneficiario")),
		IDPrestador:    parseID(cr.field(row, "id_prestador")),
		Liberado:       parseMoney(cr.field(row, "vl_liberado")),
	}, nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

// parseDate accepts ISO and Brazilian day-first dates, nil otherwise.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// parseCompetencia reads a period column: a date truncated to its month.
func parseCompetencia(s string) *competencia.Competencia {
	t := parseDate(s)
	if t == nil {
		return nil
	}
	c := competencia.FromTime(*t)
	return &c
}

// parseMoney parses a monetary string to float64 pointer, nil for empty or
// unparseable values. Accepts 1234.56, 1234,56 and 1.234,56: when a comma is
// present it is the decimal mark and dots are thousand separators.
func parseMoney(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if s == "" {
		return nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseID parses an integer id, nil for empty or unparseable values.
func parseID(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parseText trims a free-text field, nil when empty.
func parseText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// parseUpper trims and uppercases a categorical field (sexo, sg_uf).
func parseUpper(s string) *string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return &s
}
