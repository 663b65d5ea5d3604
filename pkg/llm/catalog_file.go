package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// modelEntry is the YAML wire form of a catalog entry. Kept separate from
// Model so the file format can stay stable independently of the Go type.
type modelEntry struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	API             string            `yaml:"api"`
	BaseURL         string            `yaml:"base_url"`
	Reasoning       bool              `yaml:"reasoning"`
	InputModalities []string          `yaml:"input_modalities"`
	Cost            modelEntryCost    `yaml:"cost"`
	ContextWindow   int               `yaml:"context_window"`
	MaxTokens       int               `yaml:"max_tokens"`
	Headers         map[string]string `yaml:"headers"`
	Capabilities    []string          `yaml:"capabilities"`
}

type modelEntryCost struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	CacheRead  float64 `yaml:"cache_read"`
	CacheWrite float64 `yaml:"cache_write"`
}

type modelFile struct {
	Models []modelEntry `yaml:"models"`
}

// LoadModels reads a YAML model catalog file. Environment variables in the
// file are expanded before parsing, so header values like "${MY_GATEWAY_KEY}"
// resolve at load time.
func LoadModels(path string) ([]Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	return ParseModels([]byte(os.ExpandEnv(string(data))))
}

// ParseModels parses YAML catalog data into models.
func ParseModels(data []byte) ([]Model, error) {
	var file modelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	models := make([]Model, 0, len(file.Models))
	for i, e := range file.Models {
		if e.ID == "" {
			return nil, fmt.Errorf("model entry %d: missing id", i)
		}
		if e.API == "" {
			return nil, fmt.Errorf("model %q: missing api", e.ID)
		}
		m := Model{
			ID:            e.ID,
			Name:          e.Name,
			API:           API(e.API),
			BaseURL:       e.BaseURL,
			Reasoning:     e.Reasoning,
			Cost:          ModelCost(e.Cost),
			ContextWindow: e.ContextWindow,
			MaxTokens:     e.MaxTokens,
			Headers:       e.Headers,
			Capabilities:  e.Capabilities,
		}
		for _, mod := range e.InputModalities {
			m.InputModalities = append(m.InputModalities, Modality(mod))
		}
		applyModelDefaults(&m)
		models = append(models, m)
	}
	return models, nil
}

func applyModelDefaults(m *Model) {
	if m.Name == "" {
		m.Name = m.ID
	}
	if len(m.InputModalities) == 0 {
		m.InputModalities = []Modality{ModalityText}
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = 4096
	}
}

// RegisterModels adds models to the built-in catalog, making them resolvable
// through GetModel. An entry with an ID already present for its API replaces
// the built-in one.
func RegisterModels(models []Model) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for _, m := range models {
		entries := catalog[m.API]
		replaced := false
		for i := range entries {
			if entries[i].ID == m.ID {
				entries[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, m)
		}
		catalog[m.API] = entries
	}
}
