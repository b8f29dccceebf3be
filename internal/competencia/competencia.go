// Package competencia handles billing periods in the YYYY-MM form used by
// the operator extracts and by every KPI endpoint.
package competencia

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Competencia is a calendar month ("competência" in operator billing), the
// grain all KPI tables are keyed on.
type Competencia struct {
	Year  int
	Month time.Month
}

var layoutRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// Parse converts a YYYY-MM string into a Competencia. Anything else is
// rejected, including months outside 01..12.
func Parse(s string) (Competencia, error) {
	m := layoutRe.FindStringSubmatch(s)
	if m == nil {
		return Competencia{}, fmt.Errorf("invalid competencia %q: want YYYY-MM", s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return Competencia{}, fmt.Errorf("invalid competencia %q: month out of range", s)
	}
	return Competencia{Year: year, Month: time.Month(month)}, nil
}

// FromTime truncates t to its calendar month.
func FromTime(t time.Time) Competencia {
	return Competencia{Year: t.Year(), Month: t.Month()}
}

func (c Competencia) String() string {
	return fmt.Sprintf("%04d-%02d", c.Year, int(c.Month))
}

// Time returns the first day of the month at UTC midnight, the value stored
// in DATE columns.
func (c Competencia) Time() time.Time {
	return time.Date(c.Year, c.Month, 1, 0, 0, 0, 0, time.UTC)
}
