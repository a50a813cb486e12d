package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
	"promptpilot/internal/provider"
	geminiProvider "promptpilot/internal/provider/gemini"
	openaiProvider "promptpilot/internal/provider/openai"
)

const (
	defaultHTTPTimeout     = 5 * time.Minute
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs the three adapters from configuration
// and stores them in the registry.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	geminiClient := NewHTTPClient(defaultHTTPTimeout)
	gemini, err := geminiProvider.New("gemini", cfg.Providers.Gemini, cfg.StagingDir, geminiClient)
	if err != nil {
		return fmt.Errorf("initialise gemini provider: %w", err)
	}
	if err := registry.Register(models.ProviderGemini, gemini); err != nil {
		return fmt.Errorf("register gemini provider: %w", err)
	}

	openRouterClient := NewHTTPClient(defaultHTTPTimeout)
	openRouter, err := openaiProvider.New("openrouter", cfg.Providers.OpenRouter, openRouterClient)
	if err != nil {
		return fmt.Errorf("initialise openrouter provider: %w", err)
	}
	if err := registry.Register(models.ProviderOpenRouter, openRouter); err != nil {
		return fmt.Errorf("register openrouter provider: %w", err)
	}

	groqClient := NewHTTPClient(defaultHTTPTimeout)
	groq, err := openaiProvider.New("groq", cfg.Providers.Groq, groqClient)
	if err != nil {
		return fmt.Errorf("initialise groq provider: %w", err)
	}
	if err := registry.Register(models.ProviderGroq, groq); err != nil {
		return fmt.Errorf("register groq provider: %w", err)
	}

	return nil
}

// NewHTTPClient returns a client with a tuned transport. The timeout covers
// reading the whole body, streamed responses included.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
