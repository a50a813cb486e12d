package gemini

import (
	"net/http"
	"strings"
)

// Capability describes how a call can reach the Gemini API.
type Capability int

const (
	// CapabilityUnavailable means neither the request nor the process has a key.
	CapabilityUnavailable Capability = iota
	// CapabilityModuleConfigured means the process-wide client is used.
	CapabilityModuleConfigured
	// CapabilityNativeClient means the request carries its own key and gets a
	// client bound to it.
	CapabilityNativeClient
)

func (c Capability) String() string {
	switch c {
	case CapabilityNativeClient:
		return "native_client"
	case CapabilityModuleConfigured:
		return "module_configured"
	default:
		return "unavailable"
	}
}

// unavailableMessage is returned in place of model output when no key exists.
const unavailableMessage = "Gemini is not available: no API key is configured for this request."

// apiClient is bound to one API key.
type apiClient struct {
	http    *http.Client
	baseURL string
	key     string
}

// CapabilityFor reports how a request carrying requestKey would be served.
func (p *Provider) CapabilityFor(requestKey string) Capability {
	c, _ := p.resolve(requestKey)
	return c
}

// resolve returns the capability for a request key and the client to use.
// The client is nil when the capability is CapabilityUnavailable.
func (p *Provider) resolve(requestKey string) (Capability, *apiClient) {
	if key := strings.TrimSpace(requestKey); key != "" {
		if p.shared != nil && key == p.shared.key {
			return CapabilityModuleConfigured, p.shared
		}
		return CapabilityNativeClient, &apiClient{http: p.client, baseURL: p.baseURL, key: key}
	}
	if p.shared != nil {
		return CapabilityModuleConfigured, p.shared
	}
	return CapabilityUnavailable, nil
}
