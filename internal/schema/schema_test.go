package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userCUE = `
resource: User: {
	attributes: {
		email: string
		name:  string
	}
	uniqueness_key: ["email"]
}

resource: Membership: {
	attributes: ["user", "org", "role"]
	constraints: [["role", "user", "org"], ["user", "org"]]
}

resource: Log: {
	attributes: {message: string}
}
`

func TestParseCUE(t *testing.T) {
	s, err := ParseCUE("schema.cue", []byte(userCUE))
	require.NoError(t, err)

	assert.Equal(t, []string{"User", "Membership", "Log"}, s.Names())

	user, ok := s.Lookup("User")
	require.True(t, ok)
	assert.Equal(t, []string{"email", "name"}, user.Attributes)
	assert.Equal(t, []string{"email"}, user.UniquenessKey)
	assert.True(t, user.HasAttribute("name"))
	assert.False(t, user.HasAttribute("phone"))

	m, ok := s.Lookup("Membership")
	require.True(t, ok)
	assert.Equal(t, []string{"user", "org", "role"}, m.Attributes)
	assert.Equal(t, [][]string{{"role", "user", "org"}, {"user", "org"}}, m.Constraints)

	log, ok := s.Lookup("Log")
	require.True(t, ok)
	assert.Empty(t, log.UniquenessKey)
	assert.Empty(t, log.Constraints)
}

func TestParseCUE_MissingAttributes(t *testing.T) {
	_, err := ParseCUE("bad.cue", []byte(`resource: Broken: {uniqueness_key: ["id"]}`))
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "resource.Broken.attributes", le.Field)
}

func TestParseCUE_SyntaxErrorHasPosition(t *testing.T) {
	_, err := ParseCUE("bad.cue", []byte("resource: {"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.cue")
}

func TestParseCUE_NoResources(t *testing.T) {
	_, err := ParseCUE("empty.cue", []byte(`other: 1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no resources declared")
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
resources:
  - name: User
    attributes: [email, name]
    uniqueness_key: [email]
  - name: Membership
    attributes: [user, org]
    constraints:
      - [user, org]
`)
	s, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"User", "Membership"}, s.Names())

	m, _ := s.Lookup("Membership")
	assert.Equal(t, [][]string{{"user", "org"}}, m.Constraints)
}

func TestParseYAML_DuplicateResource(t *testing.T) {
	data := []byte(`
resources:
  - name: User
    attributes: [email]
  - name: User
    attributes: [email]
`)
	_, err := ParseYAML(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate resource name")
}

func TestLoad_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	cuePath := filepath.Join(dir, "schema.cue")
	require.NoError(t, os.WriteFile(cuePath, []byte(userCUE), 0644))
	s, err := Load(cuePath)
	require.NoError(t, err)
	assert.Len(t, s.Resources, 3)

	yamlPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("resources:\n  - name: Log\n    attributes: [message]\n"), 0644))
	s, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"Log"}, s.Names())

	txtPath := filepath.Join(dir, "schema.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0644))
	_, err = Load(txtPath)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.cue"))
	assert.Error(t, err)
}

func TestLoad_CUEDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.cue"), []byte("package model\n"+userCUE), 0644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"User", "Membership", "Log"}, s.Names())
}
