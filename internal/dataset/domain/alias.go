package domain

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/forecast/internal/config"
)

// AliasTable maps external field names onto canonical column names.
type AliasTable struct {
	canonical map[string]string
}

// NewAliasTable validates aliases against the canonical schema. Canonical
// names always resolve to themselves.
func NewAliasTable(aliases []config.FieldAlias) (AliasTable, error) {
	table := AliasTable{canonical: make(map[string]string, len(aliases)+len(Columns)+1)}
	table.canonical[DateColumn] = DateColumn
	for _, column := range Columns {
		table.canonical[column] = column
	}

	for _, alias := range aliases {
		from := strings.TrimSpace(alias.From)
		to := strings.TrimSpace(alias.To)
		if to != DateColumn && !IsSchemaColumn(to) {
			return AliasTable{}, fmt.Errorf("alias %q targets unknown column %q", from, to)
		}
		if existing, ok := table.canonical[from]; ok && existing != to {
			return AliasTable{}, fmt.Errorf("alias %q conflicts with %q", from, existing)
		}
		table.canonical[from] = to
	}
	return table, nil
}

// Resolve returns the canonical column for key.
func (t AliasTable) Resolve(key string) (string, bool) {
	column, ok := t.canonical[strings.TrimSpace(key)]
	return column, ok
}
