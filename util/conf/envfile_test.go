package conf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lambda-feedback/procvisor/util/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nFOO=bar\nQUOTED=\"a b\"\n"), 0o600))

	env, err := conf.LoadEnvFile(path)
	require.NoError(t, err)

	assert.Equal(t, "bar", env["FOO"])
	assert.Equal(t, "a b", env["QUOTED"])
	assert.Len(t, env, 2)
}

func TestLoadEnvFile_Missing(t *testing.T) {
	_, err := conf.LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
