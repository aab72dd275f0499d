package config

import (
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed models.toml
var modelsTOML []byte

var (
	// ErrNoModels is returned when the registry contains no model profiles
	ErrNoModels = errors.New("model registry is empty")
	// ErrDefaultUnknown is returned when the default model is not a
	// registered profile
	ErrDefaultUnknown = errors.New("default model has no profile")
)

// ModelProfile is the static configuration for one model.
// Profiles are read-only at runtime.
type ModelProfile struct {
	// Name is the user-facing display name.
	Name string `toml:"name" json:"name"`

	// Description is a short user-facing summary.
	Description string `toml:"description" json:"description"`

	// MaxTokens is the maximum number of output tokens per call.
	MaxTokens int `toml:"max_tokens" json:"maxTokens"`

	// Sampling parameters passed to the provider.
	Temperature float64 `toml:"temperature" json:"temperature"`
	TopP        float64 `toml:"top_p" json:"topP"`
	TopK        int     `toml:"top_k" json:"topK"`

	// Local throttling limits.
	RequestsPerMinute int `toml:"requests_per_minute" json:"requestsPerMinute"`
	RequestsPerDay    int `toml:"requests_per_day" json:"requestsPerDay"`
	CooldownMS        int `toml:"cooldown_ms" json:"cooldownMs"`

	// Fallbacks is the ordered list of models tried when this model is
	// throttled or failing. Not exposed over the API.
	Fallbacks []string `toml:"fallbacks" json:"-"`
}

// Cooldown returns the cooldown as a duration.
func (p ModelProfile) Cooldown() time.Duration {
	return time.Duration(p.CooldownMS) * time.Millisecond
}

// modelsFile is the on-disk shape of the embedded registry.
type modelsFile struct {
	Default string                  `toml:"default"`
	Models  map[string]ModelProfile `toml:"models"`
}

// ModelRegistry holds the model profiles and the default model.
// It is built once at startup and never mutated afterwards.
type ModelRegistry struct {
	defaultModel string
	profiles     map[string]ModelProfile
}

// LoadModels decodes the embedded model registry.
// Returns an error if the registry is empty or the default model is not
// one of the registered profiles.
func LoadModels() (*ModelRegistry, error) {
	var file modelsFile
	if err := toml.Unmarshal(modelsTOML, &file); err != nil {
		return nil, fmt.Errorf("failed to decode model registry: %w", err)
	}

	if len(file.Models) == 0 {
		return nil, ErrNoModels
	}
	if _, ok := file.Models[file.Default]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrDefaultUnknown, file.Default)
	}

	return &ModelRegistry{
		defaultModel: file.Default,
		profiles:     file.Models,
	}, nil
}

// Default returns the default model identifier.
func (r *ModelRegistry) Default() string {
	return r.defaultModel
}

// Profile returns the profile for a model identifier.
func (r *ModelRegistry) Profile(modelID string) (ModelProfile, bool) {
	p, ok := r.profiles[modelID]
	return p, ok
}

// ProfileOrDefault returns the profile for a model identifier, falling
// back to the default model's profile when the identifier is unknown.
// Unknown models still get throttled rather than bypassing limits.
func (r *ModelRegistry) ProfileOrDefault(modelID string) ModelProfile {
	if p, ok := r.profiles[modelID]; ok {
		return p
	}
	return r.profiles[r.defaultModel]
}

// Resolve maps a client-selected model to a registered model identifier.
// Empty or unknown selections resolve to the default model.
func (r *ModelRegistry) Resolve(selected string) string {
	if _, ok := r.profiles[selected]; ok {
		return selected
	}
	return r.defaultModel
}

// Candidates returns the ordered model list tried for one chat turn:
// the primary model followed by its configured fallbacks.
// Fallback entries without a profile are skipped.
func (r *ModelRegistry) Candidates(primary string) []string {
	primary = r.Resolve(primary)
	profile := r.profiles[primary]

	candidates := make([]string, 0, len(profile.Fallbacks)+1)
	candidates = append(candidates, primary)
	for _, fallback := range profile.Fallbacks {
		if _, ok := r.profiles[fallback]; ok && fallback != primary {
			candidates = append(candidates, fallback)
		}
	}
	return candidates
}

// Profiles returns a copy of the full profile mapping, suitable for the
// models endpoint.
func (r *ModelRegistry) Profiles() map[string]ModelProfile {
	out := make(map[string]ModelProfile, len(r.profiles))
	for id, p := range r.profiles {
		out[id] = p
	}
	return out
}
