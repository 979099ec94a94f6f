package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/domain"
)

func TestRegistry_BuiltinProfiles(t *testing.T) {
	registry := NewRegistry(nil)

	tests := []struct {
		language string
		image    string
		filename string
		compiled bool
	}{
		{"javascript", "node:18-alpine", "solution.js", false},
		{"python", "python:3.11-slim", "solution.py", false},
		{"cpp", "gcc:11", "solution.cpp", true},
		{"c", "gcc:11", "solution.c", true},
		{"java", "eclipse-temurin:17-jdk-alpine", "Solution.java", true},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			p, err := registry.ProfileFor(tt.language)
			require.NoError(t, err)
			assert.Equal(t, tt.language, p.Language)
			assert.Equal(t, tt.image, p.Image)
			assert.Equal(t, tt.filename, p.SourceFilename)
			assert.Equal(t, tt.compiled, p.HasCompileStep())
			assert.NotEmpty(t, p.RunCommand)
		})
	}
}

func TestRegistry_UnknownLanguage(t *testing.T) {
	registry := NewRegistry(nil)

	for _, lang := range []string{"ruby", "", "go"} {
		_, err := registry.ProfileFor(lang)
		require.ErrorIs(t, err, domain.ErrUnsupportedLanguage, lang)
	}
}

func TestRegistry_NormalizesName(t *testing.T) {
	registry := NewRegistry(nil)

	p, err := registry.ProfileFor("  Python ")
	require.NoError(t, err)
	assert.Equal(t, LanguagePython, p.Language)
}

func TestRegistry_Overrides(t *testing.T) {
	cfg := &config.Config{Languages: map[string]config.Language{
		"python": {
			Image:       "python:3.12-slim",
			Environment: map[string]string{"pythonhashseed": "0"},
			PrefixCode:  "import sys\n",
		},
		"ruby": {Image: "ruby:3"},
	}}
	registry := NewRegistry(cfg)

	p, err := registry.ProfileFor(LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, "python:3.12-slim", p.Image)
	assert.Equal(t, "solution.py", p.SourceFilename, "unset fields keep the built-in value")
	assert.Equal(t, "0", p.Environment["PYTHONHASHSEED"])
	assert.Equal(t, "1", p.Environment["PYTHONUNBUFFERED"])
	assert.Equal(t, "import sys\nprint(1)", p.Source("print(1)"))

	_, err = registry.ProfileFor("ruby")
	require.ErrorIs(t, err, domain.ErrUnsupportedLanguage, "overrides cannot add languages")

	fresh := NewRegistry(nil)
	p, err = fresh.ProfileFor(LanguagePython)
	require.NoError(t, err)
	assert.NotContains(t, p.Environment, "PYTHONHASHSEED", "overrides must not leak into the built-in table")
}

func TestRegistry_Languages(t *testing.T) {
	assert.Equal(t, []string{"c", "cpp", "java", "javascript", "python"}, NewRegistry(nil).Languages())
}

func TestEnvList(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=2"}, envList(map[string]string{"B": "2", "A": "1"}))
	assert.Empty(t, envList(nil))
}
