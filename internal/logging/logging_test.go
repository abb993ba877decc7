package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"trace", zerolog.TraceLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNew_WritesToRotatingFile(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	path := filepath.Join(t.TempDir(), "logs", "torsh.log")
	log := New(Config{Level: "info", Path: path})
	t.Cleanup(func() { _ = log.Close() })

	componentLog := WithComponent(log.Logger, "syncer")
	componentLog.Info().Msg("cycle published")
	log.Debug().Msg("below level")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"syncer"`)
	assert.Contains(t, string(data), "cycle published")
	assert.NotContains(t, string(data), "below level")
}

func TestNew_EmptyPathDiscards(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	log := New(Config{})
	log.Info().Msg("dropped")
	assert.NoError(t, log.Close())
}
