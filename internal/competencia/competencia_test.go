package competencia

import (
	"testing"
	"time"
)

func TestParseValid(t *testing.T) {
	cases := map[string]Competencia{
		"2025-05": {Year: 2025, Month: time.May},
		"2025-01": {Year: 2025, Month: time.January},
		"2025-12": {Year: 2025, Month: time.December},
		"1999-02": {Year: 1999, Month: time.February},
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"2025/05",
		"2025-13",
		"2025-00",
		"25-05",
		"2025-5",
		"202505",
		"2025-05-01",
		" 2025-05",
		"",
	}
	for _, in := range cases {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", in)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"2025-05", "2024-12", "0099-01"} {
		c, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := c.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}

func TestTimeIsFirstDayUTC(t *testing.T) {
	c := Competencia{Year: 2025, Month: time.May}
	got := c.Time()
	want := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Time() = %v, want %v", got, want)
	}
}

func TestFromTimeTruncates(t *testing.T) {
	got := FromTime(time.Date(2025, time.May, 23, 14, 30, 0, 0, time.UTC))
	want := Competencia{Year: 2025, Month: time.May}
	if got != want {
		t.Errorf("FromTime() = %v, want %v", got, want)
	}
}
