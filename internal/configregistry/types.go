// Package configregistry is the Config Registry: persisted app
// and per-engine parameters, validation, atomic load/save, backups and
// restore, template application, and the v1->v2 migration. The on-disk
// wire format is JSON; viper handles section loading and defaulting,
// while templates are read and applied with encoding/json (see
// DESIGN.md for why the wire format itself stays encoding/json).
package configregistry

import "time"

// MainConfig is configs/app/main.json: top-level app identity/versioning.
type MainConfig struct {
	Version          string `json:"version" mapstructure:"version"`
	Language         string `json:"language" mapstructure:"language"`
	Theme            string `json:"theme" mapstructure:"theme"`
	ConcurrentTasks  int    `json:"concurrent_tasks" mapstructure:"concurrent_tasks"`
	UpdatedAt        int64  `json:"updated_at" mapstructure:"updated_at"`
}

// UIConfig is configs/app/ui.json: window/display preferences.
type UIConfig struct {
	WindowWidth  int    `json:"window_width" mapstructure:"window_width"`
	WindowHeight int    `json:"window_height" mapstructure:"window_height"`
	ShowProgress bool   `json:"show_progress" mapstructure:"show_progress"`
	Theme        string `json:"theme" mapstructure:"theme"`
	UpdatedAt    int64  `json:"updated_at" mapstructure:"updated_at"`
}

// FilesConfig is configs/app/files.json: I/O locations and size limits.
type FilesConfig struct {
	DefaultOutputDir  string `json:"default_output_dir" mapstructure:"default_output_dir"`
	MaxFileSizeMB     int    `json:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	TempDir           string `json:"temp_dir" mapstructure:"temp_dir"`
	UpdatedAt         int64  `json:"updated_at" mapstructure:"updated_at"`
}

// PerformanceConfig is configs/app/performance.json: resource ceilings.
type PerformanceConfig struct {
	CacheDurationS int   `json:"cache_duration_s" mapstructure:"cache_duration_s"`
	MemoryLimitMB  int   `json:"memory_limit_mb" mapstructure:"memory_limit_mb"`
	UpdatedAt      int64 `json:"updated_at" mapstructure:"updated_at"`
}

// PreferencesConfig is configs/app/preferences.json: user-facing defaults.
type PreferencesConfig struct {
	DefaultEngine string `json:"default_engine" mapstructure:"default_engine"`
	DefaultVoice  string `json:"default_voice" mapstructure:"default_voice"`
	AutoBackup    bool   `json:"auto_backup" mapstructure:"auto_backup"`
	UpdatedAt     int64  `json:"updated_at" mapstructure:"updated_at"`
}

// AppConfig bundles the five app-level sections Load/Save operate on
// as a unit.
type AppConfig struct {
	Main        MainConfig        `json:"main" mapstructure:"main"`
	UI          UIConfig          `json:"ui" mapstructure:"ui"`
	Files       FilesConfig       `json:"files" mapstructure:"files"`
	Performance PerformanceConfig `json:"performance" mapstructure:"performance"`
	Preferences PreferencesConfig `json:"preferences" mapstructure:"preferences"`
}

// DefaultAppConfig seeds the typed defaults used when no file exists
// yet or a section fails to parse.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Main: MainConfig{
			Version:         "2.0.0",
			Language:        "en",
			Theme:           "system",
			ConcurrentTasks: 1,
		},
		UI: UIConfig{
			WindowWidth:  1024,
			WindowHeight: 768,
			ShowProgress: true,
			Theme:        "system",
		},
		Files: FilesConfig{
			DefaultOutputDir: "./output",
			MaxFileSizeMB:    100,
			TempDir:          "./temp",
		},
		Performance: PerformanceConfig{
			CacheDurationS: 3600,
			MemoryLimitMB:  1024,
		},
		Preferences: PreferencesConfig{
			DefaultEngine: "edge_tts",
			DefaultVoice:  "zh-CN-XiaoxiaoNeural",
			AutoBackup:    true,
		},
	}
}

// EngineRecord is one entry of the engine registry file's engines map.
type EngineRecord struct {
	Info       map[string]string `json:"info" mapstructure:"info"`
	Parameters map[string]string `json:"parameters" mapstructure:"parameters"`
	Status     string            `json:"status" mapstructure:"status"`
	Enabled    bool              `json:"enabled" mapstructure:"enabled"`
	Priority   int               `json:"priority" mapstructure:"priority"`
	CreatedAt  int64             `json:"created_at" mapstructure:"created_at"`
	UpdatedAt  int64             `json:"updated_at" mapstructure:"updated_at"`
}

// EngineRegistryFile is configs/engines/registry.json.
type EngineRegistryFile struct {
	ConfigVersion string                  `json:"config_version"`
	LastUpdated   int64                   `json:"last_updated"`
	Engines       map[string]EngineRecord `json:"engines"`
}

// ConfigType distinguishes what a backup covers.
type ConfigType string

const (
	ConfigTypeApp    ConfigType = "app"
	ConfigTypeEngine ConfigType = "engine"
	ConfigTypeAll    ConfigType = "all"
)

// BackupRecord is stored (keyed by ID) in
// the backup index.
type BackupRecord struct {
	ID          string     `json:"backup_id"`
	ConfigType  ConfigType `json:"config_type"`
	Description string     `json:"description"`
	AutoBackup  bool       `json:"auto_backup"`
	CreatedAt   time.Time  `json:"created_at"`
	FileCount   int        `json:"file_count"`
	TotalSize   int64      `json:"total_size"`
}

// BackupIndex is configs/backups/backup_index.json: a map from backup
// id to its record, maintained as an LRU of at most maxBackups entries.
type BackupIndex map[string]BackupRecord

// Template is one configs/templates/*.json file: named sections to
// copy over the live config on ApplyTemplate.
type Template struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	App         *AppConfig         `json:"app,omitempty"`
	Engines     map[string]EngineRecord `json:"engines,omitempty"`
}
