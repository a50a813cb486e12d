package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
	"promptpilot/internal/provider"
)

func TestRegisterConfiguredProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.Gemini.APIKey = "k"
	cfg.StagingDir = t.TempDir()

	registry := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredProviders(cfg, registry))

	for kind, name := range map[models.Provider]string{
		models.ProviderGemini:     "gemini",
		models.ProviderOpenRouter: "openrouter",
		models.ProviderGroq:       "groq",
	} {
		a, err := registry.Lookup(kind)
		require.NoError(t, err)
		require.Equal(t, name, a.Name())
	}
}

func TestRegisterConfiguredProvidersRejectsMissingBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.Groq.BaseURL = ""

	require.Error(t, RegisterConfiguredProviders(cfg, provider.NewRegistry()))
	require.Error(t, RegisterConfiguredProviders(cfg, nil))
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(5 * time.Second)
	require.Equal(t, 5*time.Second, c.Timeout)
	require.NotNil(t, c.Transport)
}
