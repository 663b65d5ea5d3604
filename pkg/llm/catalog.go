package llm

import (
	"strings"
	"sync"
)

// catalog is the built-in model registry, keyed by API then model ID. The
// entries cover the current flagship and workhorse models per provider;
// callers with other models construct a Model directly or extend the catalog
// with RegisterModels.
var catalogMu sync.RWMutex

var catalog = map[API][]Model{
	APIAnthropicMessages: {
		{
			ID: "claude-opus-4-5", Name: "Claude Opus 4.5", API: APIAnthropicMessages,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText, ModalityImage, ModalityFile},
			Cost:            ModelCost{Input: 5, Output: 25, CacheRead: 0.5, CacheWrite: 6.25},
			ContextWindow:   200000, MaxTokens: 64000,
			Capabilities: []string{CapabilityFunctionCalling},
		},
		{
			ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", API: APIAnthropicMessages,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText, ModalityImage, ModalityFile},
			Cost:            ModelCost{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
			ContextWindow:   200000, MaxTokens: 64000,
			Capabilities: []string{CapabilityFunctionCalling},
		},
		{
			ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", API: APIAnthropicMessages,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText, ModalityImage},
			Cost:            ModelCost{Input: 1, Output: 5, CacheRead: 0.1, CacheWrite: 1.25},
			ContextWindow:   200000, MaxTokens: 64000,
			Capabilities: []string{CapabilityFunctionCalling},
		},
	},
	APIOpenAIResponses: {
		{
			ID: "gpt-5.1", Name: "GPT-5.1", API: APIOpenAIResponses,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText, ModalityImage, ModalityFile},
			Cost:            ModelCost{Input: 1.25, Output: 10, CacheRead: 0.125},
			ContextWindow:   400000, MaxTokens: 128000,
			Capabilities: []string{CapabilityFunctionCalling},
		},
		{
			ID: "gpt-5-mini", Name: "GPT-5 mini", API: APIOpenAIResponses,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText, ModalityImage},
			Cost:            ModelCost{Input: 0.25, Output: 2, CacheRead: 0.025},
			ContextWindow:   400000, MaxTokens: 128000,
			Capabilities: []string{CapabilityFunctionCalling},
		},
	},
	APIGoogleGenAI: {
		{
			ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", API: APIGoogleGenAI,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText, ModalityImage, ModalityFile},
			Cost:            ModelCost{Input: 1.25, Output: 10, CacheRead: 0.31},
			ContextWindow:   1048576, MaxTokens: 65536,
			Capabilities: []string{CapabilityFunctionCalling},
		},
		{
			ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", API: APIGoogleGenAI,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText, ModalityImage, ModalityFile},
			Cost:            ModelCost{Input: 0.3, Output: 2.5, CacheRead: 0.075},
			ContextWindow:   1048576, MaxTokens: 65536,
			Capabilities: []string{CapabilityFunctionCalling},
		},
	},
	APIDeepSeek: {
		{
			ID: "deepseek-chat", Name: "DeepSeek V3", API: APIDeepSeek,
			InputModalities: []Modality{ModalityText},
			Cost:            ModelCost{Input: 0.27, Output: 1.1, CacheRead: 0.07},
			ContextWindow:   131072, MaxTokens: 8192,
			Capabilities: []string{CapabilityFunctionCalling},
		},
		{
			ID: "deepseek-reasoner", Name: "DeepSeek R1", API: APIDeepSeek,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText},
			Cost:            ModelCost{Input: 0.55, Output: 2.19, CacheRead: 0.14},
			ContextWindow:   131072, MaxTokens: 65536,
			Capabilities: []string{CapabilityFunctionCalling},
		},
	},
	APICerebras: {
		{
			ID: "zai-glm-4.6", Name: "GLM 4.6 (Cerebras)", API: APICerebras,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText},
			Cost:            ModelCost{Input: 0.6, Output: 2.2},
			ContextWindow:   131072, MaxTokens: 40000,
			Capabilities: []string{CapabilityFunctionCalling},
		},
	},
	APIZAI: {
		{
			ID: "glm-4.6", Name: "GLM 4.6", API: APIZAI,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText},
			Cost:            ModelCost{Input: 0.6, Output: 2.2, CacheRead: 0.11},
			ContextWindow:   204800, MaxTokens: 131072,
			Capabilities: []string{CapabilityFunctionCalling},
		},
	},
	APIKimi: {
		{
			ID: "kimi-k2-0905-preview", Name: "Kimi K2", API: APIKimi,
			InputModalities: []Modality{ModalityText},
			Cost:            ModelCost{Input: 0.6, Output: 2.5, CacheRead: 0.15},
			ContextWindow:   262144, MaxTokens: 16384,
			Capabilities: []string{CapabilityFunctionCalling},
		},
		{
			ID: "kimi-k2-thinking", Name: "Kimi K2 Thinking", API: APIKimi,
			Reasoning:       true,
			InputModalities: []Modality{ModalityText},
			Cost:            ModelCost{Input: 0.6, Output: 2.5, CacheRead: 0.15},
			ContextWindow:   262144, MaxTokens: 32768,
			Capabilities: []string{CapabilityFunctionCalling},
		},
	},
}

// GetModel looks up a model by API and ID. Exact match wins; otherwise a
// catalog entry whose ID is a prefix of the requested ID matches, so
// date-suffixed variants ("claude-sonnet-4-5-20250929") resolve to their base
// entry with the requested ID preserved. Returns nil when nothing matches.
func GetModel(api API, id string) *Model {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	entries := catalog[api]
	for i := range entries {
		if entries[i].ID == id {
			m := entries[i]
			return &m
		}
	}
	for i := range entries {
		if strings.HasPrefix(id, entries[i].ID) {
			m := entries[i]
			m.ID = id
			return &m
		}
	}
	return nil
}

// Models returns the catalog entries for an API.
func Models(api API) []Model {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	entries := catalog[api]
	out := make([]Model, len(entries))
	copy(out, entries)
	return out
}
