package engine

import (
	"encoding/json"
	"os"

	"github.com/charmbracelet/log"
)

// catalogVoice is the on-disk shape of one voices{} entry in a per-engine
// JSON voice catalog.
type catalogVoice struct {
	Name          string   `json:"name"`
	Language      string   `json:"language"`
	Gender        string   `json:"gender"`
	Description   string   `json:"description"`
	Personalities []string `json:"personalities"`
	IsPopular     bool     `json:"is_popular"`
	IsRecommended bool     `json:"is_recommended"`
}

// catalogFile is the on-disk voice catalog schema:
// {metadata:{version,source,updated_at?}, voices:{voice_id: {...}}}.
type catalogFile struct {
	Metadata struct {
		Version   string `json:"version"`
		Source    string `json:"source"`
		UpdatedAt string `json:"updated_at,omitempty"`
	} `json:"metadata"`
	Voices map[string]catalogVoice `json:"voices"`
}

// LoadVoiceCatalog reads a per-engine JSON voice catalog from path. If
// the file is absent, it returns (nil, nil) so the caller falls back to
// its built-in default list when no catalog file is present.
func LoadVoiceCatalog(path string) ([]VoiceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cf catalogFile
	if err := json.Unmarshal(data, &cf); err != nil {
		log.Warn("voice catalog malformed, falling back to built-in list", "path", path, "err", err)
		return nil, nil
	}

	out := make([]VoiceInfo, 0, len(cf.Voices))
	for id, v := range cf.Voices {
		out = append(out, VoiceInfo{
			ID:          id,
			Name:        v.Name,
			Language:    v.Language,
			Gender:      v.Gender,
			Popular:     v.IsPopular,
			Recommended: v.IsRecommended,
			CustomAttrs: map[string]string{"description": v.Description},
		})
	}
	return out, nil
}
