package configregistry

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	klagzip "github.com/klauspost/compress/gzip"
	"github.com/spf13/viper"

	"github.com/battconv/battconv/internal/apperr"
)

// ChangeListener is notified after an engine-parameter edit is
// persisted; Save fans the notification out to every registered
// listener.
type ChangeListener func(engineID string, rec EngineRecord)

// Registry is the authoritative in-memory + on-disk record of app and
// engine settings. A read-write lock guards every load so
// concurrent readers see a consistent snapshot.
type Registry struct {
	mu sync.RWMutex

	root       string // configs/ root directory
	app        AppConfig
	engines    EngineRegistryFile
	maxBackups int

	listeners []ChangeListener
	watcher   *fsnotify.Watcher
}

// New constructs a Registry rooted at dir (typically "configs") without
// touching disk; call Load to populate it.
func New(dir string) *Registry {
	return &Registry{
		root:       dir,
		app:        DefaultAppConfig(),
		engines:    EngineRegistryFile{ConfigVersion: "2.0.0", Engines: map[string]EngineRecord{}},
		maxBackups: 10,
	}
}

func (r *Registry) appDir() string      { return filepath.Join(r.root, "app") }
func (r *Registry) enginesDir() string  { return filepath.Join(r.root, "engines") }
func (r *Registry) templatesDir() string { return filepath.Join(r.root, "templates") }
func (r *Registry) backupsDir() string  { return filepath.Join(r.root, "backups") }
func (r *Registry) backupIndexPath() string {
	return filepath.Join(r.backupsDir(), "backup_index.json")
}

// Load reads every app-config section and the engine registry file,
// falling back to typed defaults for any file that's missing or
// malformed: a malformed file reverts to defaults and logs the problem.
// This is the one place in the system where a failure is silently
// absorbed rather than surfaced.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app := DefaultAppConfig()
	loadSection(filepath.Join(r.appDir(), "main.json"), &app.Main)
	loadSection(filepath.Join(r.appDir(), "ui.json"), &app.UI)
	loadSection(filepath.Join(r.appDir(), "files.json"), &app.Files)
	loadSection(filepath.Join(r.appDir(), "performance.json"), &app.Performance)
	loadSection(filepath.Join(r.appDir(), "preferences.json"), &app.Preferences)
	r.app = app

	engines := EngineRegistryFile{ConfigVersion: "2.0.0", Engines: map[string]EngineRecord{}}
	if ok := loadJSON(filepath.Join(r.enginesDir(), "registry.json"), &engines); ok {
		r.engines = engines
	}

	return nil
}

// loadSection reads one viper-merged JSON section into dst, logging and
// leaving dst at its caller-supplied default on any failure.
func loadSection(path string, dst interface{}) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn("config section unreadable, using defaults", "path", path, "err", err)
		}
		return
	}
	if err := v.Unmarshal(dst); err != nil {
		log.Warn("config section malformed, using defaults", "path", path, "err", err)
	}
}

func loadJSON(path string, dst interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("config file unreadable, using defaults", "path", path, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn("config file malformed, using defaults", "path", path, "err", err)
		return false
	}
	return true
}

// App returns a value copy of the live app config.
func (r *Registry) App() AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.app
}

// Engines returns a value copy of the live engine registry.
func (r *Registry) Engines() EngineRegistryFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.engines
	out.Engines = make(map[string]EngineRecord, len(r.engines.Engines))
	for k, v := range r.engines.Engines {
		out.Engines[k] = v
	}
	return out
}

// SaveApp validates then atomically persists every app section,
// refusing to write an invalid config.
func (r *Registry) SaveApp(cfg AppConfig) error {
	if ok, errs := Validate(cfg); !ok {
		return fmt.Errorf("%w: %v", apperr.New(ErrValidation, "configregistry", "save_app"), errs)
	}

	now := time.Now().Unix()
	cfg.Main.UpdatedAt = now
	cfg.UI.UpdatedAt = now
	cfg.Files.UpdatedAt = now
	cfg.Performance.UpdatedAt = now
	cfg.Preferences.UpdatedAt = now

	if err := writeJSONAtomic(filepath.Join(r.appDir(), "main.json"), cfg.Main); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(r.appDir(), "ui.json"), cfg.UI); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(r.appDir(), "files.json"), cfg.Files); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(r.appDir(), "performance.json"), cfg.Performance); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(r.appDir(), "preferences.json"), cfg.Preferences); err != nil {
		return err
	}

	r.mu.Lock()
	r.app = cfg
	r.mu.Unlock()
	return nil
}

// SetEngineParameter persists one engine parameter edit, then fires
// every registered change listener.
func (r *Registry) SetEngineParameter(engineID, key, value string) error {
	r.mu.Lock()
	rec, ok := r.engines.Engines[engineID]
	if !ok {
		rec = EngineRecord{Parameters: map[string]string{}, CreatedAt: time.Now().Unix()}
	}
	if rec.Parameters == nil {
		rec.Parameters = map[string]string{}
	}
	rec.Parameters[key] = value
	rec.UpdatedAt = time.Now().Unix()
	r.engines.Engines[engineID] = rec
	r.engines.LastUpdated = rec.UpdatedAt
	snapshot := r.engines
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.Unlock()

	if err := writeJSONAtomic(filepath.Join(r.enginesDir(), "registry.json"), snapshot); err != nil {
		return err
	}
	for _, l := range listeners {
		l(engineID, rec)
	}
	return nil
}

// AddListener registers a callback fired after every engine-parameter
// persist.
func (r *Registry) AddListener(l ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// writeJSONAtomic serializes v to a temporary file then renames it
// into place.
func writeJSONAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Watch starts an fsnotify watch over the app, engines and templates
// config directories (not recursive; other subdirectories are not
// watched) so external edits (or another process's Save) are picked up
// without a poll loop, invoking reload on every write or create event,
// with no debouncing. Callers should defer StopWatch.
func (r *Registry) Watch(reload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range []string{r.appDir(), r.enginesDir(), r.templatesDir()} {
		_ = os.MkdirAll(dir, 0o755)
		if err := w.Add(dir); err != nil {
			log.Warn("configregistry: could not watch directory", "dir", dir, "err", err)
		}
	}

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := r.Load(); err != nil {
						log.Warn("configregistry: reload after fs event failed", "err", err)
						continue
					}
					if reload != nil {
						reload()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("configregistry: watch error", "err", err)
			}
		}
	}()
	return nil
}

// StopWatch closes the fsnotify watcher started by Watch, if any.
func (r *Registry) StopWatch() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

// ListTemplates returns every configs/templates/*.json file's Template.
func (r *Registry) ListTemplates() ([]Template, error) {
	entries, err := os.ReadDir(r.templatesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Template
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var tmpl Template
		if loadJSON(filepath.Join(r.templatesDir(), e.Name()), &tmpl) {
			out = append(out, tmpl)
		}
	}
	return out, nil
}

// ApplyTemplate copies a named template's sections into the live
// config and re-runs SaveApp plus the engine registry persist.
func (r *Registry) ApplyTemplate(name string) error {
	templates, err := r.ListTemplates()
	if err != nil {
		return err
	}
	for _, t := range templates {
		if t.Name != name {
			continue
		}
		if t.App != nil {
			if err := r.SaveApp(*t.App); err != nil {
				return err
			}
		}
		for id, rec := range t.Engines {
			r.mu.Lock()
			r.engines.Engines[id] = rec
			snapshot := r.engines
			r.mu.Unlock()
			if err := writeJSONAtomic(filepath.Join(r.enginesDir(), "registry.json"), snapshot); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Backup copies the whole config tree into configs/backups/<id>.tar.gz,
// with app/ and engines/ entries inside,
// as a gzip-compressed tar (klauspost/compress's gzip, a drop-in faster
// encoder than the stdlib one), records a BackupRecord, and enforces
// the LRU cap by deleting the oldest backup once max_backups is
// exceeded.
func (r *Registry) Backup(configType ConfigType, description string, auto bool) (BackupRecord, error) {
	id := uuid.NewString()
	archivePath := filepath.Join(r.backupsDir(), id+".tar.gz")
	if err := os.MkdirAll(r.backupsDir(), 0o755); err != nil {
		return BackupRecord{}, err
	}

	fileCount, totalSize, err := writeBackupArchive(archivePath, r.root, configType)
	if err != nil {
		return BackupRecord{}, err
	}

	rec := BackupRecord{
		ID:          id,
		ConfigType:  configType,
		Description: description,
		AutoBackup:  auto,
		CreatedAt:   time.Now(),
		FileCount:   fileCount,
		TotalSize:   totalSize,
	}

	if err := r.indexAndEvict(rec); err != nil {
		return BackupRecord{}, err
	}
	log.Info("config backup created", "id", id, "files", fileCount, "size", humanize.Bytes(uint64(totalSize)))
	return rec, nil
}

func writeBackupArchive(archivePath, root string, configType ConfigType) (fileCount int, totalSize int64, err error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	gz, err := klagzip.NewWriterLevel(f, klagzip.DefaultCompression)
	if err != nil {
		return 0, 0, err
	}
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	dirs := backupSourceDirs(root, configType)
	for _, dir := range dirs {
		walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			hdr := &tar.Header{Name: rel, Mode: 0o644, Size: int64(len(data))}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if _, err := tw.Write(data); err != nil {
				return err
			}
			fileCount++
			totalSize += int64(len(data))
			return nil
		})
		if walkErr != nil {
			return fileCount, totalSize, walkErr
		}
	}
	return fileCount, totalSize, nil
}

func backupSourceDirs(root string, configType ConfigType) []string {
	switch configType {
	case ConfigTypeApp:
		return []string{filepath.Join(root, "app")}
	case ConfigTypeEngine:
		return []string{filepath.Join(root, "engines")}
	default:
		return []string{filepath.Join(root, "app"), filepath.Join(root, "engines")}
	}
}

// indexAndEvict writes rec into the backup index and deletes the oldest
// entry (by CreatedAt) once the index exceeds maxBackups.
func (r *Registry) indexAndEvict(rec BackupRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := BackupIndex{}
	loadJSON(r.backupIndexPath(), &index)
	index[rec.ID] = rec

	for len(index) > r.maxBackups {
		oldestID := oldestBackupID(index)
		delete(index, oldestID)
		_ = os.Remove(filepath.Join(r.backupsDir(), oldestID+".tar.gz"))
		log.Info("evicted oldest config backup", "id", oldestID)
	}

	return writeJSONAtomic(r.backupIndexPath(), index)
}

func oldestBackupID(index BackupIndex) string {
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return index[ids[i]].CreatedAt.Before(index[ids[j]].CreatedAt)
	})
	return ids[0]
}

// CleanupOldBackups removes every backup older than the given age.
func (r *Registry) CleanupOldBackups(maxAge time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := BackupIndex{}
	loadJSON(r.backupIndexPath(), &index)

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, rec := range index {
		if rec.CreatedAt.Before(cutoff) {
			delete(index, id)
			_ = os.Remove(filepath.Join(r.backupsDir(), id+".tar.gz"))
			removed++
		}
	}
	if removed > 0 {
		if err := writeJSONAtomic(r.backupIndexPath(), index); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Restore overwrites the live config tree from a backup id's archive,
// then reloads.
func (r *Registry) Restore(id string) error {
	archivePath := filepath.Join(r.backupsDir(), id+".tar.gz")
	f, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return err
	}
	defer f.Close()

	gz, err := klagzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		dest := filepath.Join(r.root, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		if err := writeJSONRaw(dest, data); err != nil {
			return err
		}
	}
	return r.Load()
}

func writeJSONRaw(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ListBackups returns every indexed BackupRecord, most recent first.
func (r *Registry) ListBackups() ([]BackupRecord, error) {
	index := BackupIndex{}
	if !loadJSON(r.backupIndexPath(), &index) {
		return nil, nil
	}
	out := make([]BackupRecord, 0, len(index))
	for _, rec := range index {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
