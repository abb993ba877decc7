package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/five82/torsh/internal/state"
)

func TestThemeNames(t *testing.T) {
	assert.Equal(t, []string{"Nightfox", "Kanagawa", "Slate"}, ThemeNames())
}

func TestNextTheme(t *testing.T) {
	assert.Equal(t, "Kanagawa", NextTheme("Nightfox"))
	assert.Equal(t, "Slate", NextTheme("Kanagawa"))
	assert.Equal(t, "Nightfox", NextTheme("Slate"))
	assert.Equal(t, "Nightfox", NextTheme("Dracula"))
}

func TestGetTheme(t *testing.T) {
	for _, name := range ThemeNames() {
		assert.Equal(t, name, GetTheme(name).Name)
	}
	assert.Equal(t, "Nightfox", GetTheme("Unknown").Name)
}

func TestThemesColorEveryStatus(t *testing.T) {
	statuses := []state.Status{
		state.StatusQueued, state.StatusChecking, state.StatusDownloading,
		state.StatusSeeding, state.StatusPaused, state.StatusError,
	}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, s := range statuses {
			assert.NotEmpty(t, th.StatusColors[s], "%s %s", name, s)
		}
		assert.Equal(t, th.Muted, th.StatusColor(state.Status(42)))
	}
}
