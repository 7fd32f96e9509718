// Package scheduler owns the task queue and worker pool: it is the
// batch-controller half of the core, responsible for every lifecycle
// transition the task state machine allows and for emitting the typed
// event stream a UI would subscribe to in place of direct polling.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/pipeline"
	"github.com/battconv/battconv/internal/task"
)

// TextLoader resolves a task's file_path to the chapter text the
// pipeline synthesizes; import/segmentation live outside this package.
type TextLoader func(filePath string) (string, error)

// Config configures a Scheduler.
type Config struct {
	Concurrency int
	Registry    pipeline.Resolver
	Transcoder  *pipeline.Transcoder
	LoadText    TextLoader
	EventBuffer int
}

type taskControl struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
	cancel context.CancelFunc
}

// Scheduler holds the task list, FIFO queue, worker pool and
// running/paused flags a batch controller needs, built on Go channels
// and goroutines with one worker per concurrency slot.
type Scheduler struct {
	mu sync.RWMutex

	tasks    []*task.Task
	byID     map[string]*task.Task
	controls map[string]*taskControl

	running bool

	queue chan *task.Task
	bus   eventBus

	cfg Config

	wg      sync.WaitGroup
	workCtx context.Context
	workCancel context.CancelFunc
}

// New creates a Scheduler with the given worker concurrency. The queue
// is sized generously (1024); enqueue never blocks, and drops the task
// with a warning if the queue is full.
func New(cfg Config) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	return &Scheduler{
		byID:     make(map[string]*task.Task),
		controls: make(map[string]*taskControl),
		queue:    make(chan *task.Task, 1024),
		cfg:      cfg,
	}
}

// Events returns a channel receiving every event published from now on.
func (s *Scheduler) Events() <-chan Event {
	return s.bus.subscribe(s.cfg.EventBuffer)
}

// nextTaskID produces "task_<seq>_<epoch_sec>" ids; t is injected so
// callers (and tests) control determinism.
func (s *Scheduler) nextTaskID(t time.Time) string {
	for seq := len(s.tasks); ; seq++ {
		id := fmt.Sprintf("task_%d_%d", seq, t.Unix())
		if _, taken := s.byID[id]; !taken {
			return id
		}
	}
}

// AddTask appends a new task in PENDING status and publishes
// task_added. The id's sequence number starts at the current task
// count and skips any id already present, so repeated calls in the same
// process don't collide even within the same second.
func (s *Scheduler) AddTask(now time.Time, filePath, outputPath string, voice task.VoiceConfig, output *task.OutputConfig, chapter task.ChapterInfo) *task.Task {
	s.mu.Lock()
	id := s.nextTaskID(now)
	t := task.New(id, filePath, outputPath, voice, output, chapter)
	s.tasks = append(s.tasks, t)
	s.byID[id] = t
	s.mu.Unlock()

	s.bus.publish(Event{Type: EventTaskAdded, TaskID: id, Snapshot: t.Snapshot()})
	return t
}

// RemoveTask cancels an in-flight task rather than deleting it out from
// under its worker goroutine; anything else is dropped from the list
// outright.
func (s *Scheduler) RemoveTask(id string) error {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: unknown task %s", id)
	}

	if t.Status() == task.StatusProcessing {
		s.mu.Unlock()
		if err := s.cancelTask(id); err != nil {
			return err
		}
		s.bus.publish(Event{Type: EventTaskRemoved, TaskID: id, Snapshot: t.Snapshot()})
		return nil
	}

	delete(s.byID, id)
	for i, candidate := range s.tasks {
		if candidate.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.bus.publish(Event{Type: EventTaskRemoved, TaskID: id})
	return nil
}

// UpdateTask lets a task's voice/output configuration be edited in
// place for any status except PROCESSING; mutating a task while its
// worker goroutine is running it would race that goroutine, but a
// PENDING, PAUSED, FAILED, CANCELLED, or even COMPLETED task is safe to
// edit since nothing is concurrently reading it.
func (s *Scheduler) UpdateTask(id string, voice *task.VoiceConfig, output *task.OutputConfig) error {
	s.mu.RLock()
	t, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", id)
	}
	if t.Status() == task.StatusProcessing {
		return fmt.Errorf("scheduler: cannot update task %s in status %s", id, t.Status())
	}
	if voice != nil {
		t.VoiceConfig = voice.Clone()
	}
	if output != nil {
		t.OutputConfig = output
	}
	s.bus.publish(Event{Type: EventTaskUpdated, TaskID: id, Snapshot: t.Snapshot()})
	return nil
}

// StartProcessing rejects if any task is PROCESSING or PAUSED,
// re-queues every task in {PENDING, FAILED, CANCELLED}, and starts the
// worker pool.
func (s *Scheduler) StartProcessing() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already running")
	}
	for _, t := range s.tasks {
		switch t.Status() {
		case task.StatusProcessing, task.StatusPaused:
			s.mu.Unlock()
			return fmt.Errorf("scheduler: task %s is already %s", t.ID, t.Status())
		}
	}

	// Pending/Failed/Cancelled all accept Processing directly, so
	// re-queuing needs no intermediate status reset — pipeline.Run's own
	// opening Transition(Processing) call covers every case.
	var requeued []*task.Task
	for _, t := range s.tasks {
		switch t.Status() {
		case task.StatusPending, task.StatusFailed, task.StatusCancelled:
			requeued = append(requeued, t)
		}
	}

	s.running = true
	s.workCtx, s.workCancel = context.WithCancel(context.Background())
	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(s.workCtx)
	}
	s.mu.Unlock()

	for _, t := range requeued {
		s.enqueue(t)
	}
	return nil
}

// StopProcessing flips the running flag and
// cancels every still-PENDING task. It also cancels the worker context
// that every running task's context derives from, so tasks already
// PROCESSING or PAUSED are not left to finish: each is cancelled at its
// next checkpoint. It returns once every worker has exited.
func (s *Scheduler) StopProcessing() {
	s.mu.Lock()
	s.running = false
	cancel := s.workCancel
	var pending []*task.Task
	for _, t := range s.tasks {
		if t.Status() == task.StatusPending {
			pending = append(pending, t)
		}
	}
	s.mu.Unlock()

	for _, t := range pending {
		if err := t.Transition(task.StatusCancelled); err == nil {
			s.bus.publish(Event{Type: EventTaskCancelled, TaskID: t.ID, Snapshot: t.Snapshot()})
		}
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// PauseProcessing pauses every currently PROCESSING task via its
// pause gate: checkpoint-based, never kills in-flight synthesis.
func (s *Scheduler) PauseProcessing() {
	s.mu.RLock()
	var ids []string
	for _, t := range s.tasks {
		if t.Status() == task.StatusProcessing {
			ids = append(ids, t.ID)
		}
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.setPaused(id, true)
	}
}

// ResumeProcessing resumes every PAUSED task.
func (s *Scheduler) ResumeProcessing() {
	s.mu.RLock()
	var ids []string
	for _, t := range s.tasks {
		if t.Status() == task.StatusPaused {
			ids = append(ids, t.ID)
		}
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.setPaused(id, false)
	}
}

// StartSingleTask enqueues exactly one PENDING/FAILED/CANCELLED task,
// starting the worker pool first if it isn't already running.
func (s *Scheduler) StartSingleTask(id string) error {
	s.mu.Lock()
	t, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: unknown task %s", id)
	}
	switch t.Status() {
	case task.StatusProcessing, task.StatusPaused:
		s.mu.Unlock()
		return fmt.Errorf("scheduler: task %s is already %s", id, t.Status())
	}
	if !s.running {
		s.running = true
		s.workCtx, s.workCancel = context.WithCancel(context.Background())
		for i := 0; i < s.cfg.Concurrency; i++ {
			s.wg.Add(1)
			go s.worker(s.workCtx)
		}
	}
	s.mu.Unlock()

	s.enqueue(t)
	return nil
}

// PauseSingleTask pauses id if it's currently PROCESSING.
func (s *Scheduler) PauseSingleTask(id string) error {
	s.mu.RLock()
	t, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", id)
	}
	if t.Status() != task.StatusProcessing {
		return fmt.Errorf("scheduler: task %s is not processing", id)
	}
	s.setPaused(id, true)
	return nil
}

// StopSingleTask cancels id, whatever its current status (cancelling a
// queued-but-not-started task just marks it CANCELLED; cancelling an
// in-flight one lets its next checkpoint observe the cancellation).
func (s *Scheduler) StopSingleTask(id string) error {
	return s.cancelTask(id)
}

func (s *Scheduler) setPaused(id string, paused bool) {
	s.mu.RLock()
	ctrl, ok := s.controls[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	ctrl.mu.Lock()
	ctrl.paused = paused
	ctrl.cond.Broadcast()
	ctrl.mu.Unlock()
}

func (s *Scheduler) cancelTask(id string) error {
	s.mu.RLock()
	ctrl, hasCtrl := s.controls[id]
	t, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", id)
	}
	if hasCtrl {
		ctrl.cancel()
		return nil
	}
	return t.Transition(task.StatusCancelled)
}

func (s *Scheduler) enqueue(t *task.Task) {
	select {
	case s.queue <- t:
	default:
		log.Warn("scheduler queue full, dropping enqueue", "task", t.ID)
	}
}

// worker is the pool loop: pop a task, run its pipeline, publish
// progress/terminal events. One task at a time per worker, any number
// of workers per Config.Concurrency.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-s.queue:
			if !ok {
				return
			}
			s.runTask(ctx, t)
		}
	}
}

func (s *Scheduler) runTask(parent context.Context, t *task.Task) {
	taskCtx, cancel := context.WithCancel(parent)
	ctrl := &taskControl{cancel: cancel}
	ctrl.cond = sync.NewCond(&ctrl.mu)

	s.mu.Lock()
	s.controls[t.ID] = ctrl
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.controls, t.ID)
		s.mu.Unlock()
		cancel()
	}()

	s.bus.publish(Event{Type: EventTaskStarted, TaskID: t.ID, Snapshot: t.Snapshot()})

	text, err := s.cfg.LoadText(t.FilePath)
	if err != nil {
		_ = t.Fail(fmt.Sprintf("failed to load text: %v", err))
		s.bus.publish(Event{Type: EventTaskFailed, TaskID: t.ID, Snapshot: t.Snapshot()})
		return
	}

	deps := pipeline.Deps{
		Registry:   s.cfg.Registry,
		Transcoder: s.cfg.Transcoder,
		PauseGate:  s.pauseGate(ctrl),
	}

	progressDone := s.watchProgress(taskCtx, t)
	err = pipeline.Run(taskCtx, t, text, deps)
	close(progressDone)

	switch t.Status() {
	case task.StatusCompleted:
		s.bus.publish(Event{Type: EventTaskCompleted, TaskID: t.ID, Snapshot: t.Snapshot()})
	case task.StatusCancelled:
		s.bus.publish(Event{Type: EventTaskCancelled, TaskID: t.ID, Snapshot: t.Snapshot()})
	case task.StatusFailed:
		s.bus.publish(Event{Type: EventTaskFailed, TaskID: t.ID, Snapshot: t.Snapshot()})
	default:
		if err != nil {
			log.Warn("pipeline returned without a terminal status", "task", t.ID, "status", t.Status(), "err", err)
		}
	}

	s.publishOverallProgress()
}

// watchProgress emits task_progress events on a short tick while a task
// runs, piggybacking on the task's own progress/remaining fields rather
// than threading a separate progress channel through the pipeline.
func (s *Scheduler) watchProgress(ctx context.Context, t *task.Task) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.bus.publish(Event{Type: EventTaskProgress, TaskID: t.ID, Snapshot: t.Snapshot()})
			}
		}
	}()
	return done
}

func (s *Scheduler) publishOverallProgress() {
	s.mu.RLock()
	total := len(s.tasks)
	var sum float64
	for _, t := range s.tasks {
		sum += float64(t.Progress())
	}
	s.mu.RUnlock()
	if total == 0 {
		return
	}
	s.bus.publish(Event{Type: EventOverallProgress, OverallProgress: sum / float64(total), OverallTotal: total})
}

// pauseGate closes over one task's control block to produce the
// pipeline.Deps.PauseGate hook: it blocks in Processing's checkpoint
// while ctrl.paused is true, stamping PAUSED/PROCESSING transitions and
// publishing their events, and unblocks early if ctx is cancelled.
func (s *Scheduler) pauseGate(ctrl *taskControl) func(ctx context.Context, t *task.Task) error {
	return func(ctx context.Context, t *task.Task) error {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		if !ctrl.paused {
			return nil
		}

		_ = t.Transition(task.StatusPaused)
		s.bus.publish(Event{Type: EventTaskPaused, TaskID: t.ID, Snapshot: t.Snapshot()})

		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				ctrl.mu.Lock()
				ctrl.cond.Broadcast()
				ctrl.mu.Unlock()
			case <-stop:
			}
		}()
		defer close(stop)

		for ctrl.paused {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ctrl.cond.Wait()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_ = t.Transition(task.StatusProcessing)
		s.bus.publish(Event{Type: EventTaskResumed, TaskID: t.ID, Snapshot: t.Snapshot()})
		return nil
	}
}
