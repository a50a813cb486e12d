// Package credentials classifies model names into provider families and picks
// the API key used for a request.
package credentials

import (
	"strings"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
)

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	geminiPrefix string
	geminiModels map[string]struct{}
	groqModels   map[string]struct{}
	groqPrefixes []string
	serverKeys   map[models.Provider]string
}

// New builds a resolver from the routing tables and the configured server keys.
func New(routing config.Routing, providers config.ProvidersConfig) *Resolver {
	groqPrefixes := make([]string, 0, len(routing.GroqPrefixes))
	for _, p := range routing.GroqPrefixes {
		if p = normalise(p); p != "" {
			groqPrefixes = append(groqPrefixes, p)
		}
	}

	return &Resolver{
		geminiPrefix: normalise(routing.GeminiPrefix),
		geminiModels: toSet(routing.GeminiModels),
		groqModels:   toSet(routing.GroqModels),
		groqPrefixes: groqPrefixes,
		serverKeys: map[models.Provider]string{
			models.ProviderGemini:     providers.Gemini.APIKey,
			models.ProviderOpenRouter: providers.OpenRouter.APIKey,
			models.ProviderGroq:       providers.Groq.APIKey,
		},
	}
}

// Classify maps a model name to its provider family. It never fails:
// anything that is not Gemini or Groq goes to OpenRouter.
func (r *Resolver) Classify(model string) models.Provider {
	m := normalise(model)

	if r.geminiPrefix != "" && strings.HasPrefix(m, r.geminiPrefix) {
		return models.ProviderGemini
	}
	if _, ok := r.geminiModels[m]; ok {
		return models.ProviderGemini
	}

	if _, ok := r.groqModels[m]; ok {
		return models.ProviderGroq
	}
	for _, prefix := range r.groqPrefixes {
		if strings.HasPrefix(m, prefix) {
			return models.ProviderGroq
		}
	}

	return models.ProviderOpenRouter
}

// Resolve classifies the model and selects the key: a non-empty user key for
// the provider wins over the server default. An empty key is not an error
// here; the adapter decides what to do with it.
func (r *Resolver) Resolve(model string, userKeys models.CredentialSet) (models.Provider, string) {
	p := r.Classify(model)
	if key := strings.TrimSpace(userKeys[p.String()]); key != "" {
		return p, key
	}
	return p, r.serverKeys[p]
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = normalise(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
