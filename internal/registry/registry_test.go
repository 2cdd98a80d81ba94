package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/schema"
)

func testSchema() *schema.Schema {
	return &schema.Schema{Resources: []schema.Resource{
		{
			Name:          "User",
			Attributes:    []string{"email", "name"},
			UniquenessKey: []string{"email"},
		},
		{
			Name:       "Log",
			Attributes: []string{"message", "level"},
		},
		{
			Name:        "Membership",
			Attributes:  []string{"user", "org", "role"},
			Constraints: [][]string{{"user", "org", "role"}, {"user", "org"}, {"org", "role"}},
		},
		{
			Name:          "Broken",
			Attributes:    []string{"id"},
			UniquenessKey: []string{"serial"},
			Constraints:   [][]string{{"id"}},
		},
	}}
}

func TestRegisterAll_DeclaredKey(t *testing.T) {
	r := New()
	r.RegisterAll(testSchema())

	d, ok := r.Descriptor("User")
	require.True(t, ok)
	assert.True(t, d.Managed)
	assert.Equal(t, []string{"email"}, d.UniquenessKey)
	assert.Equal(t, "lane.user", d.Lane)

	lane, ok := r.Lanes()["User"]
	require.True(t, ok)
	assert.Equal(t, "lane.user", lane.Label())
	assert.True(t, lane.Suspended(), "lanes are created suspended")
}

func TestRegisterAll_NoKeyIsUnmanaged(t *testing.T) {
	r := New()
	r.RegisterAll(testSchema())

	d, ok := r.Descriptor("Log")
	require.True(t, ok)
	assert.False(t, d.Managed)
	assert.Empty(t, d.Lane)
	assert.NoError(t, d.Err)
	_, hasLane := r.Lanes()["Log"]
	assert.False(t, hasLane)
}

func TestRegisterAll_LeastComplexConstraint(t *testing.T) {
	r := New()
	r.RegisterAll(testSchema())

	d, _ := r.Descriptor("Membership")
	assert.True(t, d.Managed)
	assert.Equal(t, []string{"user", "org"}, d.UniquenessKey, "fewest attributes, first declared on ties")
	assert.Equal(t, []string{"user", "org"}, r.KeyFor("Membership"))
}

func TestRegisterAll_InvalidDeclaredKeyDowngrades(t *testing.T) {
	r := New()
	r.RegisterAll(testSchema())

	d, ok := r.Descriptor("Broken")
	require.True(t, ok)
	assert.False(t, d.Managed, "a rejected declared key does not fall back to constraints")
	require.Error(t, d.Err)
	assert.True(t, ir.IsValidationFailure(d.Err))

	// The rest of the schema still loaded.
	assert.Len(t, r.Descriptors(), 4)
}

func TestRegisterAll_Idempotent(t *testing.T) {
	r := New()
	s := testSchema()
	r.RegisterAll(s)
	first := r.Lanes()["User"]

	r.RegisterAll(s)
	assert.Len(t, r.Descriptors(), 4)
	assert.Len(t, r.Lanes(), 2)
	assert.Same(t, first, r.Lanes()["User"], "re-registration keeps the original lane")
}

func TestDescriptors_RegistrationOrder(t *testing.T) {
	r := New()
	r.RegisterAll(testSchema())

	var names []string
	for _, d := range r.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"User", "Log", "Membership", "Broken"}, names)
}

func TestUnregisterAll_DiscardsLanes(t *testing.T) {
	r := New()
	r.RegisterAll(testSchema())
	lane := r.Lanes()["User"]

	r.UnregisterAll()
	assert.Empty(t, r.Lanes())
	assert.Empty(t, r.Descriptors())
	assert.Nil(t, r.KeyFor("User"))

	r.RegisterAll(testSchema())
	assert.NotSame(t, lane, r.Lanes()["User"], "a fresh lane after reload")
}

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name    string
		res     schema.Resource
		want    []string
		wantErr bool
	}{
		{
			name: "declared",
			res:  schema.Resource{Name: "A", Attributes: []string{"x", "y"}, UniquenessKey: []string{"y", "x"}},
			want: []string{"y", "x"},
		},
		{
			name:    "declared missing attribute",
			res:     schema.Resource{Name: "A", Attributes: []string{"x"}, UniquenessKey: []string{"x", "z"}},
			wantErr: true,
		},
		{
			name: "tie goes to first declared",
			res:  schema.Resource{Name: "A", Attributes: []string{"a", "b"}, Constraints: [][]string{{"b"}, {"a"}}},
			want: []string{"b"},
		},
		{
			name: "empty constraint ignored",
			res:  schema.Resource{Name: "A", Attributes: []string{"a"}, Constraints: [][]string{{}, {"a"}}},
			want: []string{"a"},
		},
		{
			name: "none",
			res:  schema.Resource{Name: "A", Attributes: []string{"a"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveKey(tt.res)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLaneLabel(t *testing.T) {
	assert.Equal(t, "lane.user", LaneLabel("User"))
	assert.Equal(t, "lane.auditentry", LaneLabel("AuditEntry"))
}
