package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseJSON decodes a JSON object into a Record. Numbers are kept as float64
// and strings are kept verbatim so that Extract can coerce numeric text.
func ParseJSON(body []byte) (Record, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: request body is empty", ErrInvalidInput)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: request body is not valid JSON", ErrInvalidInput)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: request body must be a JSON object", ErrInvalidInput)
	}

	r := make(Record)
	doc.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Number:
			r[key.String()] = value.Num
		case gjson.String:
			r[key.String()] = value.Str
		case gjson.Null:
			r[key.String()] = nil
		default:
			r[key.String()] = value.Value()
		}
		return true
	})
	return r, nil
}

// ReadCSV reads header-driven CSV text and returns one Record per data row.
// Every cell is coerced to float64; the first cell that fails coercion aborts
// the read with an error naming the 1-based data row and the column.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: CSV file is empty", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read CSV header: %v", ErrInvalidInput, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, fmt.Errorf("%w: CSV header column %d is empty", ErrInvalidInput, i+1)
		}
	}

	var records []Record
	for row := 1; ; row++ {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: CSV row %d: %v", ErrInvalidInput, row, err)
		}

		rec := make(Record, len(header))
		for i, name := range header {
			f, err := ParseFloat(name, cells[i])
			if err != nil {
				return nil, fmt.Errorf("CSV row %d: %w", row, err)
			}
			rec[name] = f
		}
		records = append(records, rec)
	}

	return records, nil
}
