package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, n int) (string, []string) {
	t.Helper()
	var content strings.Builder
	var lines []string
	for i := 1; i <= n; i++ {
		line := fmt.Sprintf("[2026-01-02 10:00:%02d.000] INF session.cc:%d line %d", i%60, i, i)
		content.WriteString(line + "\n")
		lines = append(lines, line)
	}
	path := filepath.Join(t.TempDir(), "daemon.log")
	require.NoError(t, os.WriteFile(path, []byte(content.String()), 0o644))
	return path, lines
}

func TestRead(t *testing.T) {
	path, all := writeLines(t, 10)

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{name: "zero", maxLines: 0, expected: nil},
		{name: "negative", maxLines: -1, expected: nil},
		{name: "partial", maxLines: 5, expected: all[5:]},
		{name: "exact", maxLines: 10, expected: all},
		{name: "more than exists", maxLines: 20, expected: all},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(path, tt.maxLines)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRead_SpansChunks(t *testing.T) {
	path, all := writeLines(t, 5000)

	got, err := Read(path, 1200)
	require.NoError(t, err)
	assert.Equal(t, all[len(all)-1200:], got)
}

func TestRead_MissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "absent.log"), 10)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRead_NoTrailingNewlineAndCRLF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	require.NoError(t, os.WriteFile(path, []byte("one\r\ntwo\r\nthree"), 0o644))

	got, err := Read(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, got)
}

func TestString(t *testing.T) {
	path, _ := writeLines(t, 3)
	assert.Equal(t, 2, strings.Count(String(path, 3), "\n"))
	assert.Empty(t, String(filepath.Join(t.TempDir(), "absent"), 3))
}
