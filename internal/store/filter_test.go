package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/connect/internal/ir"
)

func TestCompileFetch_NoFilter(t *testing.T) {
	sql, params := compileFetch("User", nil)

	assert.Contains(t, sql, "FROM records WHERE resource = ?")
	assert.Contains(t, sql, "ORDER BY seq ASC, id ASC COLLATE BINARY")
	assert.Equal(t, []any{"User"}, params)
}

func TestCompileFetch_ScalarPushdown(t *testing.T) {
	sql, params := compileFetch("User", ir.Object{
		"name":   ir.String("Ada"),
		"age":    ir.Int(36),
		"active": ir.Bool(true),
	})

	// Keys compile in sorted order: active, age, name.
	assert.Equal(t, []any{
		"User",
		"$.active", "true",
		"$.age", "$.age", int64(36),
		"$.name", "$.name", "Ada",
	}, params)
	assert.NotContains(t, sql, "Ada", "values are parameterized")
	assert.Contains(t, sql, "json_type(attributes, ?) = 'integer'")
	assert.Contains(t, sql, "json_type(attributes, ?) = 'text'")
	assert.Contains(t, sql, "ORDER BY")
}

func TestCompileFetch_ResidualFilters(t *testing.T) {
	_, params := compileFetch("User", ir.Object{
		"tags":    ir.Array{ir.String("a")},
		"odd-key": ir.String("x"),
		"nested":  ir.Object{"k": ir.Int(1)},
	})

	assert.Equal(t, []any{"User"}, params, "composite values and quoted keys are filtered in Go")
}

func TestFetch_FilterSemantics(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	_, err := r.Apply(ctx, ir.ChangeSet{Inserted: []ir.Record{
		{ID: "r1", Resource: "Flag", Attributes: ir.Object{"v": ir.Bool(true), "n": ir.Int(1), "s": ir.String("1")}},
		{ID: "r2", Resource: "Flag", Attributes: ir.Object{"v": ir.Int(1), "n": ir.String("1"), "s": ir.Array{ir.String("1")}}},
		{ID: "r3", Resource: "Flag", Attributes: ir.Object{"v": ir.Bool(false), "n": ir.Int(1), "odd-key": ir.String("x")}},
	}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter ir.Object
		want   []string
	}{
		{"bool true is not int 1", ir.Object{"v": ir.Bool(true)}, []string{"r1"}},
		{"int 1 is not bool true", ir.Object{"v": ir.Int(1)}, []string{"r2"}},
		{"int is not string", ir.Object{"n": ir.Int(1)}, []string{"r1", "r3"}},
		{"string is not array", ir.Object{"s": ir.String("1")}, []string{"r1"}},
		{"array filtered in go", ir.Object{"s": ir.Array{ir.String("1")}}, []string{"r2"}},
		{"quoted key filtered in go", ir.Object{"odd-key": ir.String("x")}, []string{"r3"}},
		{"missing attribute", ir.Object{"absent": ir.String("x")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := r.Fetch(ctx, "Flag", tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, rec := range recs {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
