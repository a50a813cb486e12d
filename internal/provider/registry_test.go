package provider

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"promptpilot/internal/models"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) Complete(context.Context, models.ProviderRequest) (string, error) {
	return s.name, nil
}

func (s stubAdapter) Stream(context.Context, models.ProviderRequest) models.Stream {
	return models.NewSliceStream(models.Fragment{Text: s.name})
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(models.ProviderGroq, stubAdapter{name: "groq"}))

	a, err := r.Lookup(models.ProviderGroq)
	require.NoError(t, err)
	require.Equal(t, "groq", a.Name())

	_, err = r.Lookup(models.ProviderGemini)
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(models.ProviderGroq, stubAdapter{name: "groq"}))
	require.ErrorIs(t, r.Register(models.ProviderGroq, stubAdapter{name: "again"}), ErrDuplicateProvider)
	require.Error(t, r.Register(models.ProviderGemini, nil))
}

func TestParseAPIError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusUnauthorized,
		Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"No auth credentials found","code":401}}`)),
	}
	err := ParseAPIError("openrouter", resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "No auth credentials found", apiErr.Message)
}

func TestParseAPIErrorPlainBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("  upstream down \n")),
	}
	err := ParseAPIError("groq", resp)
	require.EqualError(t, err, "groq error status 502: upstream down")
}
