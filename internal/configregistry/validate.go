package configregistry

import (
	"fmt"
	"regexp"
)

var knownThemes = map[string]bool{"system": true, "light": true, "dark": true}

var knownLanguages = map[string]bool{
	"en": true, "zh": true, "zh-CN": true, "ja": true, "es": true, "fr": true, "de": true,
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validate applies every per-section rule and returns the
// accumulated error list rather than stopping at the first failure, so
// a caller can surface every problem at once.
func Validate(cfg AppConfig) (bool, []string) {
	var errs []string

	if !versionPattern.MatchString(cfg.Main.Version) {
		errs = append(errs, fmt.Sprintf("main.version %q must match \\d+.\\d+.\\d+", cfg.Main.Version))
	}
	if !knownThemes[cfg.Main.Theme] {
		errs = append(errs, fmt.Sprintf("main.theme %q is not a known theme", cfg.Main.Theme))
	}
	if !knownLanguages[cfg.Main.Language] {
		errs = append(errs, fmt.Sprintf("main.language %q is not a known language", cfg.Main.Language))
	}
	if cfg.Main.ConcurrentTasks < 1 || cfg.Main.ConcurrentTasks > 16 {
		errs = append(errs, "main.concurrent_tasks must be in [1,16]")
	}

	if !knownThemes[cfg.UI.Theme] {
		errs = append(errs, fmt.Sprintf("ui.theme %q is not a known theme", cfg.UI.Theme))
	}
	if cfg.UI.WindowWidth < 320 || cfg.UI.WindowWidth > 7680 {
		errs = append(errs, "ui.window_width out of allowed range")
	}
	if cfg.UI.WindowHeight < 240 || cfg.UI.WindowHeight > 4320 {
		errs = append(errs, "ui.window_height out of allowed range")
	}

	if cfg.Files.MaxFileSizeMB < 1 || cfg.Files.MaxFileSizeMB > 1024 {
		errs = append(errs, "files.max_file_size_mb must be in [1,1024]")
	}
	if cfg.Files.DefaultOutputDir == "" {
		errs = append(errs, "files.default_output_dir must not be empty")
	}

	if cfg.Performance.CacheDurationS < 60 || cfg.Performance.CacheDurationS > 86400 {
		errs = append(errs, "performance.cache_duration_s must be in [60,86400]")
	}
	if cfg.Performance.MemoryLimitMB < 256 || cfg.Performance.MemoryLimitMB > 8192 {
		errs = append(errs, "performance.memory_limit_mb must be in [256,8192]")
	}

	if cfg.Preferences.DefaultEngine == "" {
		errs = append(errs, "preferences.default_engine must not be empty")
	}

	return len(errs) == 0, errs
}
