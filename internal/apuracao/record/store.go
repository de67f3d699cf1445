// Package record holds the normalized lucky-number records a draw runs over.
// A Store is built once from already-parsed rows and is read-only afterwards,
// so any number of draws may share it concurrently.
package record

import (
	"strconv"
)

// Recognized column names of an ingested row.
const (
	ColumnNumber     = "numero_sorte"
	ColumnContactKey = "chave_contato"
	ColumnDate       = "data"
	ColumnProduct    = "produto"
)

// Row is one parsed input line keyed by column name.
type Row map[string]string

// Record is an immutable normalized row. Value is the number the draw
// compares on: the full number in flat stores, the within-partition number in
// partitioned stores.
type Record struct {
	Ordinal               int    `json:"-"`
	ContactKey            string `json:"chave_contato"`
	Number                string `json:"numero_sorte"`
	Partition             string `json:"serie,omitempty"`
	NumberWithinPartition string `json:"numero_sorte_base,omitempty"`
	Date                  string `json:"data,omitempty"`
	Product               string `json:"produto,omitempty"`

	value   int64
	numeric bool
}

// Value returns the comparison value and whether the record has one.
func (r Record) Value() (int64, bool) {
	return r.value, r.numeric
}

// Store is an ordered, read-only sequence of records.
type Store struct {
	records        []Record
	byPartition    map[string][]Record
	partitionWidth int
	usable         int
}

// NewStore normalizes rows into a Store. A partitionWidth of zero builds a
// flat store; otherwise the first partitionWidth characters of each number
// are its partition and the remainder its within-partition number.
func NewStore(rows []Row, partitionWidth int) *Store {
	if partitionWidth < 0 {
		partitionWidth = 0
	}
	s := &Store{
		records:        make([]Record, 0, len(rows)),
		byPartition:    make(map[string][]Record),
		partitionWidth: partitionWidth,
	}
	for i, row := range rows {
		rec := normalize(i, row, partitionWidth)
		s.records = append(s.records, rec)
		if rec.numeric {
			s.usable++
		}
		if rec.Partition != "" {
			s.byPartition[rec.Partition] = append(s.byPartition[rec.Partition], rec)
		}
	}
	return s
}

func normalize(ordinal int, row Row, width int) Record {
	rec := Record{
		Ordinal:    ordinal,
		ContactKey: row[ColumnContactKey],
		Number:     row[ColumnNumber],
		Date:       row[ColumnDate],
		Product:    row[ColumnProduct],
	}
	if width == 0 {
		rec.value, rec.numeric = ParseNumber(rec.Number)
		return rec
	}
	if len(rec.Number) <= width || !IsDigits(rec.Number) {
		return rec
	}
	rec.Partition = rec.Number[:width]
	rec.NumberWithinPartition = rec.Number[width:]
	rec.value, rec.numeric = ParseNumber(rec.NumberWithinPartition)
	return rec
}

// Records returns the full record sequence in input order. The slice must
// not be modified.
func (s *Store) Records() []Record {
	return s.records
}

// InPartition returns the records whose partition equals p, in input order.
func (s *Store) InPartition(p string) []Record {
	return s.byPartition[p]
}

// Partitions returns the raw set of partition identifiers observed.
func (s *Store) Partitions() map[string]struct{} {
	set := make(map[string]struct{}, len(s.byPartition))
	for p := range s.byPartition {
		set[p] = struct{}{}
	}
	return set
}

// Len returns the number of stored records, numeric or not.
func (s *Store) Len() int {
	return len(s.records)
}

// Usable returns the number of records with a comparable value.
func (s *Store) Usable() int {
	return s.usable
}

// PartitionWidth returns the prefix width the store was built with.
func (s *Store) PartitionWidth() int {
	return s.partitionWidth
}

// IsDigits reports whether s is a non-empty string of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseNumber parses a digit string, leading zeros allowed. Anything else,
// including values that overflow int64, reports false.
func ParseNumber(s string) (int64, bool) {
	if !IsDigits(s) {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
