package scheduler

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/battconv/battconv/internal/task"
)

func TestExportTasksRoundTrip(t *testing.T) {
	sched, dir := newTestScheduler(t)
	now := time.Unix(1700000000, 0)

	voice := task.VoiceConfig{
		EngineID: "fake", VoiceName: "v1", Language: "en-US", Rate: 1.25, Pitch: -2, Volume: 0.9,
		OutputFormat: "mp3", Extra: map[string]string{"voice_style": "calm"},
	}
	out := task.DefaultOutputConfig(dir)
	tk := sched.AddTask(now, "book.txt", filepath.Join(dir, "01_book.mp3"), voice, &out, task.ChapterInfo{Number: 1, Title: "book"})
	_ = tk.Transition(task.StatusProcessing)
	_ = tk.Fail("network timeout")

	data, err := sched.ExportTasks(now, "test session")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("export produced malformed JSON: %v", err)
	}
	if file.Metadata.Version != sessionFileVersion || file.Metadata.TotalTasks != 1 {
		t.Fatalf("unexpected metadata: %+v", file.Metadata)
	}
	if len(file.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(file.Tasks))
	}
	st := file.Tasks[0]
	if st.Status != "failed" || st.ErrorMessage != "network timeout" {
		t.Fatalf("unexpected task record: %+v", st)
	}
	if st.VoiceConfig.Engine != "fake" || st.VoiceConfig.Rate != 1.25 || st.VoiceConfig.ExtraParams["voice_style"] != "calm" {
		t.Fatalf("voice config not preserved: %+v", st.VoiceConfig)
	}
	if st.StartTime == nil || st.EndTime == nil {
		t.Fatal("expected start/end times on a terminal task")
	}

	// Import into a fresh scheduler: the failed task is accepted and
	// keeps its saved status, so StartProcessing would re-enqueue it.
	sched2, dir2 := newTestScheduler(t)
	out2 := task.DefaultOutputConfig(dir2)
	imported, skipped, err := sched2.ImportTasks(data, &out2)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if imported != 1 || skipped != 0 {
		t.Fatalf("imported=%d skipped=%d", imported, skipped)
	}
	snaps := sched2.Tasks()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 task after import, got %d", len(snaps))
	}
	got := snaps[0]
	if got.Status != task.StatusFailed || got.ErrorMessage != "network timeout" {
		t.Fatalf("restored task lost its state: %+v", got)
	}
	if got.VoiceConfig.VoiceName != "v1" || got.VoiceConfig.OutputFormat != "mp3" {
		t.Fatalf("restored voice config wrong: %+v", got.VoiceConfig)
	}
}

func TestImportTasksSkipsNonImportableStatuses(t *testing.T) {
	data := []byte(`{
		"metadata": {"version": "1.0", "created_at": "2023-11-14T00:00:00Z", "total_tasks": 4, "description": ""},
		"tasks": [
			{"id": "t1", "file_path": "a.txt", "output_path": "", "status": "pending", "progress": 0, "start_time": null, "end_time": null,
			 "voice_config": {"engine": "fake", "voice_name": "v", "rate": 1, "pitch": 0, "volume": 1, "language": "en-US", "output_format": "wav"}},
			{"id": "t2", "file_path": "b.txt", "output_path": "", "status": "processing", "progress": 40, "start_time": 1700000000, "end_time": null,
			 "voice_config": {"engine": "fake", "voice_name": "v", "rate": 1, "pitch": 0, "volume": 1, "language": "en-US", "output_format": "wav"}},
			{"id": "t3", "file_path": "c.txt", "output_path": "", "status": "completed", "progress": 100, "start_time": 1700000000, "end_time": 1700000100,
			 "voice_config": {"engine": "fake", "voice_name": "v", "rate": 1, "pitch": 0, "volume": 1, "language": "en-US", "output_format": "wav"}},
			{"id": "t4", "file_path": "d.txt", "output_path": "", "status": "cancelled", "progress": 10, "start_time": null, "end_time": 1700000050,
			 "voice_config": {"engine": "fake", "voice_name": "v", "rate": 1, "pitch": 0, "volume": 1, "language": "en-US", "output_format": "wav"}}
		]
	}`)

	sched, dir := newTestScheduler(t)
	out := task.DefaultOutputConfig(dir)
	imported, skipped, err := sched.ImportTasks(data, &out)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if imported != 2 || skipped != 2 {
		t.Fatalf("imported=%d skipped=%d, want 2/2", imported, skipped)
	}
	for _, snap := range sched.Tasks() {
		if snap.ID == "t2" || snap.ID == "t3" {
			t.Fatalf("task %s should have been skipped", snap.ID)
		}
	}
}

func TestImportTasksSkipsDuplicateIDs(t *testing.T) {
	sched, dir := newTestScheduler(t)
	now := time.Unix(1700000000, 0)
	voice := task.VoiceConfig{EngineID: "fake", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1}
	out := task.DefaultOutputConfig(dir)
	sched.AddTask(now, "in.txt", "", voice, &out, task.ChapterInfo{Number: 1})

	data, err := sched.ExportTasks(now, "")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	imported, skipped, err := sched.ImportTasks(data, &out)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if imported != 0 || skipped != 1 {
		t.Fatalf("imported=%d skipped=%d, want 0/1", imported, skipped)
	}
}

func TestImportTasksMalformedJSON(t *testing.T) {
	sched, dir := newTestScheduler(t)
	out := task.DefaultOutputConfig(dir)
	if _, _, err := sched.ImportTasks([]byte("{not json"), &out); err == nil {
		t.Fatal("expected error for malformed task list")
	}
}
