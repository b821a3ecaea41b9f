package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/simtempd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Write(dir))

	b, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))

	err = Write(dir)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	require.NoError(t, Remove(dir))
	_, err = os.Stat(Path(dir))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, Remove(dir), "removing a missing file is not an error")
}

func TestWriteReplacesStaleFile(t *testing.T) {
	tests := map[string]string{
		"dead process": "4194305", // above the largest possible pid_max
		"garbage":      "not-a-pid",
		"empty":        "",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(Path(dir), []byte(content), 0o600))

			require.NoError(t, Write(dir))

			b, err := os.ReadFile(Path(dir))
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))
		})
	}
}

func TestPathDefaultsToTempDir(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "simtempd.pid"), Path(""))
}
