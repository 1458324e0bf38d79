package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.txt", "report.txt"},
		{"spaces", "my report.txt", "my_report.txt"},
		{"path separators", "a/b\\c", "a_b_c"},
		{"kept characters", "a-b_c.d", "a-b_c.d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SafeName(tt.in))
		})
	}
}

func TestCopyFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0640))

	// Destination parents are created.
	dst := filepath.Join(dir, "nested", "dst.txt")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	// Source stays put.
	assert.True(t, FileExists(src))

	assert.Error(t, CopyFile(filepath.Join(dir, "missing"), dst))
}

func TestMoveFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0640))

	dst := filepath.Join(dir, "moved.txt")
	require.NoError(t, MoveFile(src, dst))

	assert.False(t, FileExists(src))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestEnsureDirAndIsDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "a", "b")

	assert.False(t, IsDir(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, IsDir(dir))

	// Idempotent.
	require.NoError(t, EnsureDir(dir))
}

func TestTruncString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", TruncString("abc", 8))
	assert.Equal(t, "abcd", TruncString("abcdefgh", 4))
	assert.Equal(t, "", TruncString("", 4))
}
