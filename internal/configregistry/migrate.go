package configregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// v1EngineKeyRenames is the deterministic v1->v2 key-remap table
// applied during migration — the only migration defined at this time.
var v1EngineKeyRenames = map[string]string{
	"voice_id":       "voice_name",
	"speed":          "rate",
	"pitch_shift":    "pitch",
	"vol":            "volume",
	"lang":           "language",
	"audio_format":   "output_format",
	"api_endpoint":   "endpoint",
	"api_timeout":    "timeout",
	"retries":        "max_retries",
	"retry_interval": "retry_delay",
}

// MigrateV1ToV2 rewrites every engine record's parameter keys in place
// using v1EngineKeyRenames and bumps config_version. It is idempotent:
// running it twice on already-migrated data is a no-op because it
// returns early once config_version is already "2.0.0".
func (r *Registry) MigrateV1ToV2() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engines.ConfigVersion == "2.0.0" {
		return nil
	}

	for id, rec := range r.engines.Engines {
		renamed := make(map[string]string, len(rec.Parameters))
		for k, v := range rec.Parameters {
			if newKey, ok := v1EngineKeyRenames[k]; ok {
				renamed[newKey] = v
			} else {
				renamed[k] = v
			}
		}
		rec.Parameters = renamed
		r.engines.Engines[id] = rec
	}
	r.engines.ConfigVersion = "2.0.0"

	if err := writeJSONAtomic(filepath.Join(r.enginesDir(), "registry.json"), r.engines); err != nil {
		return fmt.Errorf("%w: %v", ErrMigration, err)
	}
	log.Info("migrated engine registry v1 -> v2", "engines", len(r.engines.Engines))
	return nil
}

// DetectVersion reads config_version out of the raw registry.json
// without going through Load, used by callers deciding whether a
// migration is needed before constructing a Registry.
func DetectVersion(registryPath string) (string, error) {
	data, err := os.ReadFile(registryPath)
	if err != nil {
		return "", err
	}
	var probe struct {
		ConfigVersion string `json:"config_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if probe.ConfigVersion == "" {
		return "1.0.0", nil
	}
	return probe.ConfigVersion, nil
}
