// Package parser turns uploaded CSV files into record rows. The first line is
// the header; every value is trimmed and stripped of double quotes, blank
// lines are skipped, and short lines leave their missing columns empty.
package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
)

// RequiredColumns must appear in the header.
var RequiredColumns = []string{record.ColumnNumber, record.ColumnContactKey}

var knownColumns = []string{record.ColumnNumber, record.ColumnContactKey, record.ColumnDate, record.ColumnProduct}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Result is a parsed upload.
type Result struct {
	Header []string
	Rows   []record.Row
}

// Parse reads CSV from r. Columns outside the known set are dropped.
func Parse(r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	fields, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.Invalidf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = clean(f)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	columns := make(map[string]int, len(knownColumns))
	for i, name := range header {
		if _, seen := columns[name]; !seen && isKnown(name) {
			columns[name] = i
		}
	}

	res := &Result{Header: header}
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if blank(fields) {
			continue
		}
		row := make(record.Row, len(knownColumns))
		for _, name := range knownColumns {
			row[name] = ""
			if i, ok := columns[name]; ok && i < len(fields) {
				row[name] = clean(fields[i])
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// ParseKeys reads contact keys separated by newlines or commas. Blank entries
// are dropped and duplicates kept once, in first-seen order.
func ParseKeys(r io.Reader) ([]string, error) {
	var keys []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		for _, part := range strings.Split(sc.Text(), ",") {
			key := clean(part)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading keys: %w", err)
	}
	return keys, nil
}

func checkHeader(header []string) error {
	var missing []string
	for _, col := range RequiredColumns {
		found := false
		for _, h := range header {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return apperrors.Invalidf("csv header is missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func isKnown(name string) bool {
	for _, k := range knownColumns {
		if k == name {
			return true
		}
	}
	return false
}

func clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

func blank(fields []string) bool {
	for _, f := range fields {
		if clean(f) != "" {
			return false
		}
	}
	return true
}
