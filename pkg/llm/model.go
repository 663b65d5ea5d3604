package llm

import "os"

// Modality is an input kind a model accepts.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityFile  Modality = "file"
)

// CapabilityFunctionCalling gates tool injection: tools are only sent to
// models that declare it.
const CapabilityFunctionCalling = "function_calling"

// ModelCost is the model's price card in dollars per million tokens.
type ModelCost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
}

// Model describes one model endpoint: identity, wire protocol, pricing,
// limits, and capabilities.
type Model struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	API             API               `json:"api"`
	BaseURL         string            `json:"baseUrl,omitempty"`
	Reasoning       bool              `json:"reasoning"`
	InputModalities []Modality        `json:"inputModalities"`
	Cost            ModelCost         `json:"cost"`
	ContextWindow   int               `json:"contextWindow"`
	MaxTokens       int               `json:"maxTokens"`
	Headers         map[string]string `json:"headers,omitempty"`
	Capabilities    []string          `json:"capabilities,omitempty"`
}

// HasCapability reports whether the model declares the named capability.
func (m *Model) HasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// SupportsModality reports whether the model accepts the given input kind.
func (m *Model) SupportsModality(mod Modality) bool {
	for _, im := range m.InputModalities {
		if im == mod {
			return true
		}
	}
	return false
}

// apiKeyEnvVars maps each API to the environment variable consulted when no
// explicit key is supplied in options.
var apiKeyEnvVars = map[API]string{
	APIOpenAIResponses:   "OPENAI_API_KEY",
	APIAnthropicMessages: "ANTHROPIC_API_KEY",
	APIGoogleGenAI:       "GEMINI_API_KEY",
	APIDeepSeek:          "DEEPSEEK_API_KEY",
	APICerebras:          "CEREBRAS_API_KEY",
	APIZAI:               "ZAI_API_KEY",
	APIKimi:              "KIMI_API_KEY",
}

// APIKeyEnvVar returns the environment variable name holding the key for an
// API, or "" for an unknown API.
func APIKeyEnvVar(api API) string { return apiKeyEnvVars[api] }

// APIKeyFromEnv returns the API key for an API from the environment, or ""
// when unset.
func APIKeyFromEnv(api API) string {
	name := apiKeyEnvVars[api]
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// ResolveAPIKey returns the explicit key when set, otherwise the environment
// fallback. A missing key is a MissingCredentialError: adapters cannot
// proceed without one.
func ResolveAPIKey(api API, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if key := APIKeyFromEnv(api); key != "" {
		return key, nil
	}
	return "", &MissingCredentialError{API: api, EnvVar: apiKeyEnvVars[api]}
}
