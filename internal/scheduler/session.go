package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/task"
)

// sessionFileVersion is the task-list export schema version.
const sessionFileVersion = "1.0"

// sessionFile is the on-disk shape of an exported task list, the format
// the batch UI persists a session in.
type sessionFile struct {
	Metadata sessionMetadata `json:"metadata"`
	Tasks    []sessionTask   `json:"tasks"`
}

type sessionMetadata struct {
	Version     string `json:"version"`
	CreatedAt   string `json:"created_at"`
	TotalTasks  int    `json:"total_tasks"`
	Description string `json:"description"`
}

type sessionTask struct {
	ID           string             `json:"id"`
	FilePath     string             `json:"file_path"`
	OutputPath   string             `json:"output_path"`
	Status       string             `json:"status"`
	Progress     int                `json:"progress"`
	ErrorMessage string             `json:"error_message,omitempty"`
	StartTime    *int64             `json:"start_time"`
	EndTime      *int64             `json:"end_time"`
	VoiceConfig  sessionVoiceConfig `json:"voice_config"`
}

type sessionVoiceConfig struct {
	Engine       string            `json:"engine"`
	VoiceName    string            `json:"voice_name"`
	Rate         float64           `json:"rate"`
	Pitch        float64           `json:"pitch"`
	Volume       float64           `json:"volume"`
	Language     string            `json:"language"`
	OutputFormat string            `json:"output_format"`
	ExtraParams  map[string]string `json:"extra_params,omitempty"`
}

// Tasks returns point-in-time snapshots of every task in insertion
// order; external readers never see the live records.
func (s *Scheduler) Tasks() []task.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]task.Snapshot, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Snapshot())
	}
	return out
}

// ExportTasks serializes the current task list, including terminal
// tasks and their error text, so a session can be reloaded later.
func (s *Scheduler) ExportTasks(now time.Time, description string) ([]byte, error) {
	snapshots := s.Tasks()

	file := sessionFile{
		Metadata: sessionMetadata{
			Version:     sessionFileVersion,
			CreatedAt:   now.Format(time.RFC3339),
			TotalTasks:  len(snapshots),
			Description: description,
		},
		Tasks: make([]sessionTask, 0, len(snapshots)),
	}
	for _, snap := range snapshots {
		file.Tasks = append(file.Tasks, sessionTask{
			ID:           snap.ID,
			FilePath:     snap.FilePath,
			OutputPath:   snap.OutputPath,
			Status:       snap.Status.String(),
			Progress:     snap.Progress,
			ErrorMessage: snap.ErrorMessage,
			StartTime:    epochSeconds(snap.StartTime),
			EndTime:      epochSeconds(snap.EndTime),
			VoiceConfig: sessionVoiceConfig{
				Engine:       snap.VoiceConfig.EngineID,
				VoiceName:    snap.VoiceConfig.VoiceName,
				Rate:         snap.VoiceConfig.Rate,
				Pitch:        snap.VoiceConfig.Pitch,
				Volume:       snap.VoiceConfig.Volume,
				Language:     snap.VoiceConfig.Language,
				OutputFormat: snap.VoiceConfig.OutputFormat,
				ExtraParams:  snap.VoiceConfig.Extra,
			},
		})
	}
	return json.MarshalIndent(file, "", "  ")
}

// ImportTasks loads a previously exported task list. Only tasks whose
// saved status is pending, failed, or cancelled are accepted — anything
// processing, paused, or completed at export time is skipped, as is any
// task whose id is already present. Accepted tasks keep their saved
// status so a following StartProcessing re-enqueues them; each emits
// task_added.
func (s *Scheduler) ImportTasks(data []byte, output *task.OutputConfig) (imported, skipped int, err error) {
	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, 0, fmt.Errorf("scheduler: malformed task list: %w", err)
	}

	var added []*task.Task
	s.mu.Lock()
	for _, st := range file.Tasks {
		status, perr := task.ParseStatus(st.Status)
		if perr != nil {
			log.Warn("skipping task with unknown status", "task", st.ID, "status", st.Status)
			skipped++
			continue
		}
		switch status {
		case task.StatusPending, task.StatusFailed, task.StatusCancelled:
		default:
			skipped++
			continue
		}
		if _, exists := s.byID[st.ID]; exists {
			log.Warn("skipping duplicate task id on import", "task", st.ID)
			skipped++
			continue
		}

		voice := task.VoiceConfig{
			EngineID:     st.VoiceConfig.Engine,
			VoiceName:    st.VoiceConfig.VoiceName,
			Rate:         st.VoiceConfig.Rate,
			Pitch:        st.VoiceConfig.Pitch,
			Volume:       st.VoiceConfig.Volume,
			Language:     st.VoiceConfig.Language,
			OutputFormat: st.VoiceConfig.OutputFormat,
			Extra:        st.VoiceConfig.ExtraParams,
		}
		t := task.Restore(st.ID, st.FilePath, st.OutputPath, voice, output, task.ChapterInfo{},
			status, st.Progress, st.ErrorMessage, epochTime(st.StartTime), epochTime(st.EndTime))
		s.tasks = append(s.tasks, t)
		s.byID[t.ID] = t
		added = append(added, t)
		imported++
	}
	s.mu.Unlock()

	for _, t := range added {
		s.bus.publish(Event{Type: EventTaskAdded, TaskID: t.ID, Snapshot: t.Snapshot()})
	}
	return imported, skipped, nil
}

func epochSeconds(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	sec := t.Unix()
	return &sec
}

func epochTime(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := time.Unix(*sec, 0)
	return &t
}
