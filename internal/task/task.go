// Package task defines the unit of scheduled work for battconv: the
// immutable synthesis request, the output configuration, and the
// mutable task record with its lifecycle state machine.
package task

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a Task.
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusPaused
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus maps a persisted status string back to its Status,
// accepting exactly the strings String produces.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "paused":
		return StatusPaused, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	case "cancelled":
		return StatusCancelled, nil
	}
	return StatusPending, fmt.Errorf("task: unknown status %q", s)
}

// IsTerminal reports whether the status ends a run (completed, failed
// or cancelled). Only completed has no outgoing edge; failed and
// cancelled tasks may be re-dispatched to processing.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// validTransitions enumerates every transition the task lifecycle
// permits, kept as an explicit table rather than scattered if-chains.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:     {StatusProcessing, StatusCancelled},
	StatusCompleted:  {},
	StatusFailed:     {StatusProcessing, StatusCancelled},
	StatusCancelled:  {StatusProcessing},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NamingMode selects how stage-5 output filenames are derived.
type NamingMode string

const (
	NamingChapterNumberTitle NamingMode = "chapter_number_title"
	NamingNumberTitle        NamingMode = "number_title"
	NamingTitleOnly          NamingMode = "title_only"
	NamingNumberOnly         NamingMode = "number_only"
	NamingOriginalFilename   NamingMode = "original_filename"
	NamingCustom             NamingMode = "custom"
)

// SubtitleFormat is the sidecar caption container.
type SubtitleFormat string

const (
	SubtitleSRT SubtitleFormat = "srt"
	SubtitleLRC SubtitleFormat = "lrc"
	SubtitleVTT SubtitleFormat = "vtt"
	SubtitleASS SubtitleFormat = "ass"
	SubtitleSSA SubtitleFormat = "ssa"
)

// VoiceConfig is an immutable synthesis request. Tasks deep-copy it on
// creation (see New and VoiceConfig.Clone) so later mutation of a
// caller's copy never reaches an already-created task.
type VoiceConfig struct {
	EngineID     string
	VoiceName    string
	Rate         float64
	Pitch        float64
	Volume       float64
	Language     string
	OutputFormat string
	Emotion      string
	Extra        map[string]string
}

// IsValid checks the numeric ranges and required fields.
func (v VoiceConfig) IsValid() bool {
	if v.EngineID == "" || v.VoiceName == "" || v.Language == "" {
		return false
	}
	if v.Rate < 0.1 || v.Rate > 3.0 {
		return false
	}
	if v.Pitch < -50 || v.Pitch > 50 {
		return false
	}
	if v.Volume < 0.0 || v.Volume > 2.0 {
		return false
	}
	return true
}

// Clone returns a deep copy, independent of the receiver's Extra map.
func (v VoiceConfig) Clone() VoiceConfig {
	out := v
	if v.Extra != nil {
		out.Extra = make(map[string]string, len(v.Extra))
		for k, val := range v.Extra {
			out.Extra[k] = val
		}
	}
	return out
}

// WithOutputFormat returns a copy forced to the given container format,
// used by the pipeline to build the preview request.
func (v VoiceConfig) WithOutputFormat(format string) VoiceConfig {
	c := v.Clone()
	c.OutputFormat = format
	return c
}

// OutputConfig controls how a task's result is named, merged and
// optionally subtitled.
type OutputConfig struct {
	OutputDir string

	Format     string
	Bitrate    int
	SampleRate int
	Channels   int

	MergeFiles     bool
	MergeFilename  string
	Normalize      bool
	ChapterMarkers bool
	ChapterInterval int

	NamingMode      NamingMode
	CustomTemplate  string
	NameLengthLimit int

	GenerateSubtitle bool
	SubtitleFormat   SubtitleFormat
	SubtitleEncoding string
	SubtitleOffset   float64
	SubtitleStyle    map[string]string
}

// DefaultOutputConfig returns the stock output parameters: 128 kbps,
// 22.05 kHz mono wav with chapter-number naming.
func DefaultOutputConfig(dir string) OutputConfig {
	return OutputConfig{
		OutputDir:       dir,
		Format:          "wav",
		Bitrate:         128,
		SampleRate:      22050,
		Channels:        1,
		NamingMode:      NamingChapterNumberTitle,
		NameLengthLimit: 50,
		SubtitleFormat:  SubtitleSRT,
		SubtitleEncoding: "utf-8",
	}
}

// ChapterInfo is the descriptor handed in alongside already-extracted
// text; chapter segmentation itself is an external collaborator.
type ChapterInfo struct {
	Number           int
	Title            string
	Index            int
	OriginalFilename string
}

// Result holds the metadata of a task's produced audio, once known.
type Result struct {
	OutputPath    string
	DetectedFormat string
	DurationS     float64
	SampleRate    int
	Channels      int
	HasSubtitle   bool
	SubtitlePath  string
}

// Task is the mutable scheduling record for one conversion job. The
// identity fields are set at creation and never mutated (OutputPath may
// additionally be filled in once by the worker when naming is deferred
// to stage 5); VoiceConfig/OutputConfig are set at creation and only
// replaced by the scheduler's UpdateTask while the task is not
// PROCESSING; Status/Progress/timing
// fields are owned exclusively by the scheduler (see
// internal/scheduler), which is why they're guarded by an internal
// mutex rather than left to the caller's discipline.
type Task struct {
	mu sync.RWMutex

	ID         string
	FilePath   string
	OutputPath string

	VoiceConfig  VoiceConfig
	OutputConfig *OutputConfig
	Chapter      ChapterInfo

	status Status

	progress             int
	estimatedDurationS   float64
	estimatedRemainingS  float64

	startTime *time.Time
	endTime   *time.Time

	errorMessage string
	result       *Result
}

// New creates a task in StatusPending. id should come from an id
// generator (scheduler.nextTaskID); VoiceConfig is deep-copied so the
// caller's own copy can be freely mutated afterward.
func New(id, filePath, outputPath string, voice VoiceConfig, output *OutputConfig, chapter ChapterInfo) *Task {
	return &Task{
		ID:           id,
		FilePath:     filePath,
		OutputPath:   outputPath,
		VoiceConfig:  voice.Clone(),
		OutputConfig: output,
		Chapter:      chapter,
		status:       StatusPending,
	}
}

// Restore rebuilds a task from persisted session data, carrying the
// saved status, progress and timing through unchanged. Used by the
// scheduler's task-list import; New is the path for fresh tasks.
func Restore(id, filePath, outputPath string, voice VoiceConfig, output *OutputConfig, chapter ChapterInfo,
	status Status, progress int, errorMessage string, start, end *time.Time) *Task {
	t := New(id, filePath, outputPath, voice, output, chapter)
	t.status = status
	t.progress = progress
	t.errorMessage = errorMessage
	t.startTime = start
	t.endTime = end
	return t
}

// SetOutputPath records the stage-5 derived output path for tasks
// created without one. Only the task's own worker goroutine calls this,
// before any terminal transition.
func (t *Task) SetOutputPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.OutputPath = path
}

// Status returns the current lifecycle status.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Progress returns the current 0..100 progress value.
func (t *Task) Progress() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// Timing returns the estimated total and remaining durations in seconds.
func (t *Task) Timing() (estimated, remaining float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.estimatedDurationS, t.estimatedRemainingS
}

// ErrorMessage returns the last recorded failure text, if any.
func (t *Task) ErrorMessage() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errorMessage
}

// Result returns the produced audio's metadata, or nil before completion.
func (t *Task) Result() *Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// StartTime and EndTime return the nullable epoch timestamps.
func (t *Task) StartTime() *time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startTime
}

func (t *Task) EndTime() *time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.endTime
}

// Transition attempts a lifecycle move. Entering PROCESSING stamps
// start_time; entering any terminal state stamps end_time and clamps
// estimated_remaining_s to 0.
func (t *Task) Transition(to Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !CanTransition(t.status, to) {
		return fmt.Errorf("task %s: invalid transition %s -> %s", t.ID, t.status, to)
	}

	now := time.Now()
	if to == StatusProcessing && t.status != StatusPaused {
		// A fresh dispatch (including re-dispatch of a FAILED/CANCELLED
		// task) gets a new start_time and a clean slate; resuming from
		// PAUSED keeps the original one.
		t.startTime = &now
		t.endTime = nil
		t.errorMessage = ""
	}
	if to.IsTerminal() {
		t.endTime = &now
		t.estimatedRemainingS = 0
	}
	t.status = to
	return nil
}

// SetProgress records the current completion percentage, clamped to
// [0,100].
func (t *Task) SetProgress(p int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	t.progress = p
}

// SetEstimation records the progress estimator's output for this task.
func (t *Task) SetEstimation(estimatedS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.estimatedDurationS = estimatedS
	t.estimatedRemainingS = estimatedS
}

// SetRemaining updates the live remaining-time figure during stage 4's
// progress-update loop.
func (t *Task) SetRemaining(remainingS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.estimatedRemainingS = remainingS
}

// Fail transitions to FAILED and records the message, as every pipeline
// stage's failure branch does.
func (t *Task) Fail(msg string) error {
	if err := t.Transition(StatusFailed); err != nil {
		return err
	}
	t.mu.Lock()
	t.errorMessage = msg
	t.mu.Unlock()
	return nil
}

// Complete transitions to COMPLETED, stamping progress 100 and the
// result metadata.
func (t *Task) Complete(result Result) error {
	if err := t.Transition(StatusCompleted); err != nil {
		return err
	}
	t.mu.Lock()
	t.progress = 100
	t.result = &result
	t.mu.Unlock()
	return nil
}

// Snapshot is an immutable, lock-free view of a Task for external
// readers (CLI status output, exported task lists) — the scheduler's
// Tasks listing and event stream carry snapshots, not the live *Task.
type Snapshot struct {
	ID           string
	FilePath     string
	OutputPath   string
	Status       Status
	Progress     int
	ErrorMessage string
	StartTime    *time.Time
	EndTime      *time.Time
	Estimated    float64
	Remaining    float64
	VoiceConfig  VoiceConfig
}

// Snapshot captures a consistent point-in-time copy of the task.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		ID:           t.ID,
		FilePath:     t.FilePath,
		OutputPath:   t.OutputPath,
		Status:       t.status,
		Progress:     t.progress,
		ErrorMessage: t.errorMessage,
		StartTime:    t.startTime,
		EndTime:      t.endTime,
		Estimated:    t.estimatedDurationS,
		Remaining:    t.estimatedRemainingS,
		VoiceConfig:  t.VoiceConfig.Clone(),
	}
}

