package engine

import "strings"

// MappingStrategy records which tier produced a VoiceMapping.
type MappingStrategy string

const (
	StrategyExact    MappingStrategy = "exact"
	StrategyFuzzy    MappingStrategy = "fuzzy"
	StrategyFallback MappingStrategy = "fallback"
)

// VoiceMapping is the result of translating a voice id from one
// engine's namespace into another's.
type VoiceMapping struct {
	SourceID   string
	TargetID   string
	Confidence float64
	Strategy   MappingStrategy
}

// VoiceMapper is a pure function of its arguments and its static
// tables: same inputs always produce the same mapping, and it
// has no side effects.
type VoiceMapper struct {
	exact    map[string]map[string]string // "<src>_to_<dst>" -> srcVoice -> dstVoice
	fallback map[string]string            // engine id -> default voice id
}

// NewVoiceMapper builds a mapper preloaded with the built-in exact and
// fallback tables for the known engine pairs.
func NewVoiceMapper() *VoiceMapper {
	m := &VoiceMapper{
		exact:    make(map[string]map[string]string),
		fallback: map[string]string{
			"edge_tts":            "zh-CN-XiaoxiaoNeural",
			"emotivoice_tts_api":  "8051",
			"piper_tts":           "zh_CN-huayan-medium",
			"pyttsx3":             "default",
			"index_tts_api_15":    "index-tts-zh-kangHuiRead",
		},
	}

	m.exact["edge_tts_to_emotivoice_tts_api"] = mapAllTo("8051",
		"zh-CN-XiaoxiaoNeural", "zh-CN-YunxiNeural", "zh-CN-YunyangNeural",
		"zh-CN-XiaoyiNeural", "zh-CN-YunjianNeural", "zh-CN-XiaochenNeural",
		"zh-CN-XiaohanNeural", "zh-CN-XiaomengNeural", "zh-CN-XiaomoNeural",
		"zh-CN-XiaoqiuNeural", "zh-CN-XiaoruiNeural", "zh-CN-XiaoshuangNeural",
		"zh-CN-XiaoxuanNeural", "zh-CN-XiaoyanNeural", "zh-CN-XiaoyouNeural",
		"zh-CN-XiaozhenNeural", "zh-CN-YunfengNeural", "zh-CN-YunhaoNeural",
		"en-US-AriaNeural", "en-US-GuyNeural", "en-US-JennyNeural",
		"en-US-DavisNeural", "en-US-EmmaNeural", "en-US-BrianNeural",
		"en-US-AvaNeural",
	)

	m.exact["edge_tts_to_piper_tts"] = map[string]string{
		"zh-CN-XiaoxiaoNeural": "zh_CN-huayan-medium",
		"zh-CN-YunxiNeural":    "zh_CN-huayan-medium",
		"zh-CN-YunyangNeural":  "zh_CN-huayan-medium",
		"zh-CN-XiaoyiNeural":   "zh_CN-huayan-medium",
		"zh-CN-YunjianNeural":  "zh_CN-huayan-medium",
		"zh-CN-XiaochenNeural": "zh_CN-huayan-medium",
		"zh-CN-XiaohanNeural":  "zh_CN-huayan-medium",
		"zh-CN-XiaomengNeural": "zh_CN-huayan-medium",
		"zh-CN-XiaomoNeural":   "zh_CN-huayan-medium",
		"zh-CN-XiaoqiuNeural":  "zh_CN-huayan-medium",
		"zh-CN-XiaoruiNeural":  "zh_CN-huayan-medium",
		"zh-CN-XiaoshuangNeural": "zh_CN-huayan-medium",
		"zh-CN-XiaoxuanNeural": "zh_CN-huayan-medium",
		"zh-CN-XiaoyanNeural":  "zh_CN-huayan-medium",
		"zh-CN-XiaoyouNeural":  "zh_CN-huayan-medium",
		"zh-CN-XiaozhenNeural": "zh_CN-huayan-medium",
		"zh-CN-YunfengNeural":  "zh_CN-huayan-medium",
		"zh-CN-YunhaoNeural":   "zh_CN-huayan-medium",
		"en-US-AriaNeural":  "en_GB-alan-medium",
		"en-US-DavisNeural": "en_GB-alan-medium",
		"en-US-EmmaNeural":  "en_GB-alan-medium",
		"en-US-GuyNeural":   "en_GB-alan-medium",
		"en-US-JennyNeural": "en_GB-alan-medium",
		"en-US-BrianNeural": "en_GB-alan-medium",
		"en-US-AvaNeural":   "en_GB-alan-medium",
	}

	m.exact["piper_tts_to_emotivoice_tts_api"] = map[string]string{
		"zh_CN-huayan-medium": "8051",
		"en_US-amy-medium":    "8051",
		"en_GB-alan-medium":   "8051",
	}

	m.exact["piper_tts_to_edge_tts"] = map[string]string{
		"zh_CN-huayan-medium": "zh-CN-XiaoxiaoNeural",
		"en_US-amy-medium":    "en-US-AriaNeural",
		"en_GB-alan-medium":   "en-GB-SoniaNeural",
	}

	m.exact["piper_tts_to_index_tts_api_15"] = map[string]string{
		"zh_CN-huayan-medium": "index-tts-zh-sampling",
		"en_US-amy-medium":    "index-tts-zh-sampling",
		"en_GB-alan-medium":   "index-tts-zh-sampling",
	}

	return m
}

func mapAllTo(target string, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = target
	}
	return out
}

// AddMapping registers (or overrides) an exact-tier mapping.
func (m *VoiceMapper) AddMapping(sourceEngine, targetEngine, sourceVoiceID, targetVoiceID string) {
	key := sourceEngine + "_to_" + targetEngine
	if m.exact[key] == nil {
		m.exact[key] = make(map[string]string)
	}
	m.exact[key][sourceVoiceID] = targetVoiceID
}

// Map resolves (source_voice_id, source_engine, target_engine,
// target_available_voices) into a VoiceMapping using the exact/fuzzy/fallback tiers.
// targetAvailable may be nil, in which case exact-tier lookups succeed
// without an availability check.
func (m *VoiceMapper) Map(sourceVoiceID, sourceEngine, targetEngine string, targetAvailable []VoiceInfo) VoiceMapping {
	if sourceEngine == targetEngine {
		return VoiceMapping{SourceID: sourceVoiceID, TargetID: sourceVoiceID, Confidence: 1.0, Strategy: StrategyExact}
	}

	key := sourceEngine + "_to_" + targetEngine
	if table, ok := m.exact[key]; ok {
		if targetID, ok := table[sourceVoiceID]; ok {
			if targetAvailable == nil || voiceAvailable(targetID, targetAvailable) {
				return VoiceMapping{SourceID: sourceVoiceID, TargetID: targetID, Confidence: 1.0, Strategy: StrategyExact}
			}
		}
	}

	if targetID, ok := m.fuzzyMatch(sourceVoiceID, targetAvailable); ok {
		return VoiceMapping{SourceID: sourceVoiceID, TargetID: targetID, Confidence: 0.8, Strategy: StrategyFuzzy}
	}

	fallbackID, ok := m.fallback[targetEngine]
	if !ok {
		fallbackID = "default"
	}
	return VoiceMapping{SourceID: sourceVoiceID, TargetID: fallbackID, Confidence: 0.5, Strategy: StrategyFallback}
}

func voiceAvailable(id string, voices []VoiceInfo) bool {
	for _, v := range voices {
		if v.ID == id || v.Name == id {
			return true
		}
	}
	return false
}

func (m *VoiceMapper) fuzzyMatch(sourceVoiceID string, available []VoiceInfo) (string, bool) {
	if len(available) == 0 {
		return "", false
	}
	sourceLang := extractLanguage(sourceVoiceID)
	if sourceLang == "" {
		return "", false
	}
	for _, v := range available {
		if extractLanguage(v.ID) == sourceLang {
			return v.ID, true
		}
	}
	return "", false
}

// extractLanguage pulls a "xx-YY" or "xx_YY"-shaped language token off
// the front of a voice id.
func extractLanguage(voiceID string) string {
	sep := strings.IndexAny(voiceID, "-_")
	if sep <= 0 {
		return ""
	}
	rest := voiceID[sep+1:]
	end := strings.IndexAny(rest, "-_")
	if end < 0 {
		end = len(rest)
	}
	if end == 0 {
		return ""
	}
	return voiceID[:sep+1+end]
}
