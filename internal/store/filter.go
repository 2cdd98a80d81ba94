package store

import (
	"regexp"
	"strings"

	"github.com/roach88/connect/internal/ir"
)

// plainKey matches attribute names usable in a JSON path without quoting.
var plainKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// compileFetch builds the parameterized SELECT for a fetch of resource.
//
// Scalar filter values are pushed down as json_type / json_extract
// predicates; anything else is left to the caller, which always re-checks
// the full filter with ir.Object.Matches. Every query carries the same
// ORDER BY so results are deterministic.
func compileFetch(resource string, filter ir.Object) (string, []any) {
	var (
		where  = []string{"resource = ?"}
		params = []any{resource}
	)
	for _, name := range filter.SortedKeys() {
		if !plainKey.MatchString(name) {
			continue
		}
		path := "$." + name
		switch v := filter[name].(type) {
		case ir.String:
			where = append(where, "json_type(attributes, ?) = 'text'", "json_extract(attributes, ?) = ?")
			params = append(params, path, path, string(v))
		case ir.Int:
			where = append(where, "json_type(attributes, ?) = 'integer'", "json_extract(attributes, ?) = ?")
			params = append(params, path, path, int64(v))
		case ir.Bool:
			jsonType := "false"
			if v {
				jsonType = "true"
			}
			where = append(where, "json_type(attributes, ?) = ?")
			params = append(params, path, jsonType)
		}
	}

	query := "SELECT id, resource, key, attributes, seq FROM records WHERE " +
		strings.Join(where, " AND ") +
		" ORDER BY seq ASC, id ASC COLLATE BINARY"
	return query, params
}
