package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitivityIndexMergesPolicies(t *testing.T) {
	idx := NewSensitivityIndex(
		&SensitivityPolicy{Actions: []string{"delete_user"}, Resources: []string{"credentials"}},
		&SensitivityPolicy{Actions: []string{"export_data"}},
		nil,
	)

	assert.True(t, idx.SensitiveAction("delete_user"))
	assert.True(t, idx.SensitiveAction("export_data"))
	assert.False(t, idx.SensitiveAction("read_page"))
	assert.True(t, idx.SensitiveResource("credentials"))
	assert.False(t, idx.SensitiveResource("document"))
}

func TestLoadSensitivityPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `actions:
  - rotate_keys
  - delete_user
resources:
  - api_keys
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	policy, err := LoadSensitivityPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rotate_keys", "delete_user"}, policy.Actions)
	assert.Equal(t, []string{"api_keys"}, policy.Resources)
}

func TestLoadSensitivityPolicyErrors(t *testing.T) {
	_, err := LoadSensitivityPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actions: {not: a list"), 0o600))
	_, err = LoadSensitivityPolicy(path)
	assert.Error(t, err)
}
