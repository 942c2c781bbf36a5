package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	got, err := ExpandPath("/tmp/stages.json")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/stages.json", got)

	usr, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	got, err = ExpandPath("~/stages.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "stages.json"), got)

	_, err = ExpandPath("~user_that_does_not_exist_1234/x")
	require.Error(t, err)
}

func TestCreateParentDir(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "a", "b", "out.png")
	exists, err := FileExists(filepath.Dir(filePath))
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, CreateParentDir(filePath))
	info, err := os.Stat(filepath.Dir(filePath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	require.NoError(t, CreateParentDir(filePath))
}
