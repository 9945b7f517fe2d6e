package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// ReadBarsCSV reads rows of the form
//
//	time,code,open,high,low,close[,volume]
//
// A header row whose first cell is "time" is skipped. Time may be RFC3339 or
// a bare YYYY-MM-DD date.
func ReadBarsCSV(r io.Reader) ([]Bar, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	bars := make([]Bar, 0, len(rows))
	for n, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("bars line %d: expected at least 6 columns, got %d", n+1, len(row))
		}
		t, err := parseTime(row[0])
		if err != nil {
			return nil, fmt.Errorf("bars line %d: %w", n+1, err)
		}
		code := strings.TrimSpace(row[1])
		if code == "" {
			return nil, fmt.Errorf("bars line %d: empty code", n+1)
		}

		var px [5]float64
		cols := row[2:]
		if len(cols) > 5 {
			cols = cols[:5]
		}
		for i, s := range cols {
			v, err := parseFloat(s)
			if err != nil {
				return nil, fmt.Errorf("bars line %d col %d: %w", n+1, i+3, err)
			}
			px[i] = v
		}

		bars = append(bars, Bar{
			Code:   code,
			Time:   t,
			Open:   px[0],
			High:   px[1],
			Low:    px[2],
			Close:  px[3],
			Volume: px[4],
		})
	}
	SortBars(bars)
	return bars, nil
}

// ReadFactorsCSV reads rows of the form time,code,factor and groups them by code.
func ReadFactorsCSV(r io.Reader) (map[string][]Factor, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Factor)
	for n, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("factors line %d: expected 3 columns, got %d", n+1, len(row))
		}
		t, err := parseTime(row[0])
		if err != nil {
			return nil, fmt.Errorf("factors line %d: %w", n+1, err)
		}
		v, err := parseFloat(row[2])
		if err != nil {
			return nil, fmt.Errorf("factors line %d: %w", n+1, err)
		}
		code := strings.TrimSpace(row[1])
		out[code] = append(out[code], Factor{Time: t, Value: v})
	}
	return out, nil
}

// LoadBarsFile opens path and reads it with ReadBarsCSV.
func LoadBarsFile(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBarsCSV(f)
}

// LoadFactorsFile opens path and reads it with ReadFactorsCSV.
func LoadFactorsFile(path string) (map[string][]Factor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFactorsCSV(f)
}

func readRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows [][]string
	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q", s)
	}
	return t, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
