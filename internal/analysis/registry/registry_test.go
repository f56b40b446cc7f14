package registry

import (
	"testing"

	"github.com/skalibog/bfta/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_KeepsConfiguredOrder(t *testing.T) {
	agents, err := Build(config.AgentsConfig{Enabled: []string{"whale", "technical", "trend"}}, Deps{})
	require.NoError(t, err)

	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name()
	}
	assert.Equal(t, []string{"whale", "technical", "trend"}, names)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
	}{
		{"unknown", []string{"astrology"}},
		{"duplicate", []string{"trend", "trend"}},
		{"missing source", []string{"funding"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(config.AgentsConfig{Enabled: tt.enabled}, Deps{})
			assert.Error(t, err)
		})
	}
}

func TestNames(t *testing.T) {
	assert.Len(t, Names(), 10)
	assert.Contains(t, Names(), "openinterest")
}
