// Package fieldmap turns populated template fields into a value lookup.
//
// Every field is reachable by its full id ("r0010_c0010") and by its bare
// row id ("r0010"). When several fields share a row id the last one wins for
// the bare entry; Duplicates reports those rows so callers can warn.
package fieldmap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DreamCats/corep/internal/template"
)

// Separator splits the row part from the column part of a field id
const Separator = "_"

// Map holds field values by full field id and by bare row id
type Map map[string]float64

// Key is a parsed "rNNNN_cNNNN" field id
type Key struct {
	Row string
	Col string
}

// String returns the field id form of the key
func (k Key) String() string {
	return k.Row + Separator + k.Col
}

var keyPattern = regexp.MustCompile(`^r\d{4}_c\d{4}$`)

// Build indexes fields in input order
func Build(fields []template.PopulatedField) Map {
	m := make(Map, len(fields)*2)
	for _, f := range fields {
		m[f.FieldID] = f.Value
		m[RowID(f.FieldID)] = f.Value
	}
	return m
}

// RowID returns the text before the first separator, or the whole id
func RowID(fieldID string) string {
	row, _, _ := strings.Cut(fieldID, Separator)
	return row
}

// ParseKey parses a strict "rNNNN_cNNNN" field id, case-insensitively
func ParseKey(fieldID string) (Key, error) {
	id := strings.ToLower(strings.TrimSpace(fieldID))
	if !keyPattern.MatchString(id) {
		return Key{}, fmt.Errorf("invalid field id %q: want rNNNN_cNNNN", fieldID)
	}
	row, col, _ := strings.Cut(id, Separator)
	return Key{Row: row, Col: col}, nil
}

// Duplicates lists row ids that more than one field maps to, in the order
// the second occurrence is seen
func Duplicates(fields []template.PopulatedField) []string {
	seen := make(map[string]int, len(fields))
	var dups []string
	for _, f := range fields {
		row := RowID(f.FieldID)
		seen[row]++
		if seen[row] == 2 {
			dups = append(dups, row)
		}
	}
	return dups
}

// Lookup returns m[key], else m[key+"_"+col], else def
func (m Map) Lookup(key, col string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	if v, ok := m[key+Separator+col]; ok {
		return v
	}
	return def
}
