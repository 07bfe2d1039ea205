// Package cron runs named background jobs, such as anycast publishing, on
// cron schedules.
package cron

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"edgeroute/api/hub"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Broadcaster receives job completion events. *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(evt hub.Event)
}

type JobState struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Paused    bool       `json:"paused"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	LastDurMs int64      `json:"lastDurationMs"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	Runs      int64      `json:"runs"`
	Failures  int64      `json:"failures"`
}

type entry struct {
	state   JobState
	timeout time.Duration
	job     Job
	id      cron.EntryID
	running sync.Mutex
}

type Scheduler struct {
	cron *cron.Cron
	ws   Broadcaster
	jobs map[string]*entry
	mu   sync.Mutex
}

func New(ws Broadcaster) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(logger))),
		ws:   ws,
		jobs: make(map[string]*entry),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("cron: scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("cron: scheduler stopped")
}

// Add registers job under name. schedule accepts standard five-field
// expressions and descriptors like "@every 1m".
func (s *Scheduler) Add(name, schedule string, timeout time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("cron: job %s already registered", name)
	}
	st := &entry{state: JobState{Name: name, Schedule: schedule}, timeout: timeout, job: job}
	if err := s.schedule(st); err != nil {
		return err
	}
	s.jobs[name] = st
	return nil
}

func (s *Scheduler) schedule(st *entry) error {
	id, err := s.cron.AddFunc(st.state.Schedule, func() { s.execute(st, false) })
	if err != nil {
		return fmt.Errorf("cron: invalid schedule %q for %s: %w", st.state.Schedule, st.state.Name, err)
	}
	st.id = id
	slog.Info("cron: scheduled", "job", st.state.Name, "schedule", st.state.Schedule)
	return nil
}

// UpdateSchedule replaces a job's schedule. The old entry stays in place when
// the new expression does not parse.
func (s *Scheduler) UpdateSchedule(name, schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("cron: unknown job %s", name)
	}
	st.state.Schedule = schedule
	if st.state.Paused {
		return nil
	}
	s.cron.Remove(st.id)
	return s.schedule(st)
}

func (s *Scheduler) Pause(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("cron: unknown job %s", name)
	}
	if !st.state.Paused {
		s.cron.Remove(st.id)
		st.state.Paused = true
		slog.Info("cron: paused", "job", name)
	}
	return nil
}

func (s *Scheduler) Resume(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("cron: unknown job %s", name)
	}
	if !st.state.Paused {
		return nil
	}
	st.state.Paused = false
	slog.Info("cron: resumed", "job", name)
	return s.schedule(st)
}

// Trigger runs the job now and waits for it. A run already in progress is
// waited for rather than overlapped.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %s", name)
	}
	return s.execute(st, true)
}

// execute runs the job once. Scheduled ticks (wait false) are skipped while
// another run is in progress.
func (s *Scheduler) execute(st *entry, wait bool) error {
	if wait {
		st.running.Lock()
	} else if !st.running.TryLock() {
		slog.Warn("cron: previous run still in progress, skipping", "job", st.state.Name)
		return nil
	}
	defer st.running.Unlock()

	timeout := st.timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := st.job(ctx)
	dur := time.Since(start)

	s.mu.Lock()
	st.state.LastRun = &start
	st.state.LastDurMs = dur.Milliseconds()
	st.state.Runs++
	st.state.LastError = ""
	if err != nil {
		st.state.Failures++
		st.state.LastError = err.Error()
	}
	s.mu.Unlock()

	evt := hub.Event{Type: "cron.completed", Subject: st.state.Name, Payload: map[string]interface{}{"durationMs": dur.Milliseconds()}}
	if err != nil {
		slog.Error("cron: job failed", "job", st.state.Name, "err", err)
		evt.Type = "cron.failed"
		evt.Payload = map[string]interface{}{"durationMs": dur.Milliseconds(), "error": err.Error()}
	}
	if s.ws != nil {
		s.ws.Broadcast(evt)
	}
	return err
}

// States returns a copy of every job's state, sorted by name.
func (s *Scheduler) States() []JobState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobState, 0, len(s.jobs))
	for _, st := range s.jobs {
		cp := st.state
		cp.NextRun = nil
		if !cp.Paused {
			if next := s.cron.Entry(st.id).Next; !next.IsZero() {
				cp.NextRun = &next
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
