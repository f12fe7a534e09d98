package crews

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/tools"
)

func TestLoaderEmbeddedCatalog(t *testing.T) {
	defs, err := NewLoader("", zap.NewNop()).Load()
	require.NoError(t, err)
	assert.Len(t, defs, 25)

	for _, key := range []string{
		"general_research", "news_digest", "finance_markets",
		"travel_planner", "weather_briefing", "daily_briefing",
	} {
		require.Contains(t, defs, key)
	}

	// every embedded definition must validate and name a renderer
	for key, def := range defs {
		assert.NoError(t, def.Validate(), key)
		assert.NotEmpty(t, def.Renderer, key)
		assert.NotEmpty(t, def.Keywords, key)
	}
}

// Every tool named by a catalog agent must exist in the default tool
// set, otherwise the crew would silently run without it.
func TestEmbeddedCatalogToolRefsResolve(t *testing.T) {
	defs, err := NewLoader("", zap.NewNop()).Load()
	require.NoError(t, err)

	reg := tools.NewRegistry(zap.NewNop())
	tools.RegisterDefaults(reg, config.ToolsConfig{}, zap.NewNop())

	_, err = NewRegistry(defs, Deps{Tools: reg, Logger: zap.NewNop()})
	require.NoError(t, err)
}

func TestLoaderDirOverride(t *testing.T) {
	dir := t.TempDir()
	override := `
key: news_digest
name: Custom News Crew
description: Overridden.
renderer: news_digest
keywords: [news]
agents:
  - name: solo
    role: Researcher
    goal: Research.
tasks:
  - id: only
    description: Do the thing for "{{request}}".
    expected_output: JSON.
    agent: solo
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "news.yaml"), []byte(override), 0o644))

	defs, err := NewLoader(dir, zap.NewNop()).Load()
	require.NoError(t, err)
	assert.Len(t, defs, 25)
	assert.Equal(t, "Custom News Crew", defs["news_digest"].Name)
}

func TestLoaderMissingDir(t *testing.T) {
	defs, err := NewLoader("/nonexistent/crews", zap.NewNop()).Load()
	require.NoError(t, err)
	assert.Len(t, defs, 25)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"),
		[]byte("key: broken\nagents: []\ntasks: []\n"), 0o644))

	_, err := NewLoader(dir, zap.NewNop()).Load()
	assert.ErrorContains(t, err, "at least one agent")
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing key",
			yaml:    "name: x",
			wantErr: "crew key is required",
		},
		{
			name: "task references unknown agent",
			yaml: `
key: k
agents:
  - {name: a, role: r, goal: g}
tasks:
  - {id: t1, description: d, agent: ghost}
`,
			wantErr: `unknown agent "ghost"`,
		},
		{
			name: "duplicate task id",
			yaml: `
key: k
agents:
  - {name: a, role: r, goal: g}
tasks:
  - {id: t1, description: d, agent: a}
  - {id: t1, description: d, agent: a}
`,
			wantErr: `duplicate task "t1"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
