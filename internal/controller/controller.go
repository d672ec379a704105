// Package controller ties the command builder, process runner, and progress
// parser together into the job state machine. It owns the single in-flight
// job and fans parsed events out to subscribers.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"plistdl/internal/command"
	"plistdl/internal/config"
	"plistdl/internal/consts"
	"plistdl/internal/entity"
	"plistdl/internal/errs"
	"plistdl/internal/observability"
	"plistdl/internal/progress"
	"plistdl/internal/runner"
	"plistdl/pkg/gen"
	"plistdl/pkg/shellquote"
	"plistdl/pkg/urls"
)

const dirPerm = 0o755

// BinaryResolver locates the external tool binary.
type BinaryResolver interface {
	Resolve(name string) (string, error)
}

// Notification delivers either a progress event or a job state change.
// Exactly one of the two fields is set.
type Notification struct {
	Event *entity.ProgressEvent
	State *entity.StateChange
}

// Controller is the job state machine. At most one job runs at a time.
type Controller struct {
	log      *slog.Logger
	cfg      *config.Config
	runner   *runner.Runner
	resolver BinaryResolver
	metrics  *observability.Metrics

	mu     sync.Mutex
	state  entity.JobState
	job    *entity.Job
	handle *runner.Handle

	subMu     sync.RWMutex
	subs      map[int]chan Notification
	nextSubID int
}

// New creates a Controller in the idle state.
func New(
	cfg *config.Config,
	log *slog.Logger,
	run *runner.Runner,
	resolver BinaryResolver,
	metrics *observability.Metrics,
) *Controller {
	return &Controller{
		log:      log.With(slog.String("package", "controller")),
		cfg:      cfg,
		runner:   run,
		resolver: resolver,
		metrics:  metrics,
		state:    entity.JobStateIdle,
		subs:     make(map[int]chan Notification),
	}
}

// Start validates the parameters, spawns the external tool, and transitions
// to running. Fails synchronously with errs.ErrAlreadyRunning if a job is in
// flight, errs.ErrInvalidParameters on bad input, and errs.ErrSpawn if the
// tool cannot be started. Permitted again once a terminal state is reached.
func (c *Controller) Start(ctx context.Context, params entity.JobParameters) (*entity.Job, error) {
	params.PlaylistURL = urls.Normalize(params.PlaylistURL)
	params = params.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == entity.JobStateRunning || c.state == entity.JobStateStopping {
		return nil, errs.ErrAlreadyRunning
	}

	inv, err := command.Build(params)
	if err != nil {
		return nil, fmt.Errorf("build command: %w", err)
	}

	if err := os.MkdirAll(params.DestinationRoot, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", errs.ErrInvalidParameters, errs.ErrBadDestination, err)
	}

	bin, err := c.resolver.Resolve(consts.BinaryYTdlp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrSpawn, err)
	}

	handle, err := c.runner.Spawn(ctx, bin, inv.Args, inv.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}

	job := &entity.Job{
		UUID:      gen.UUIDv5(params.PlaylistURL, params.DestinationRoot),
		Params:    params,
		StartedAt: time.Now(),
	}

	c.job = job
	c.handle = handle
	c.setStateLocked(entity.JobStateRunning)
	c.metrics.RecordJobStarted()

	cmdline := shellquote.Join(bin, inv.Args)
	c.log.InfoContext(ctx, "job started", "job", job, slog.String("command", cmdline))
	c.publish(Notification{Event: &entity.ProgressEvent{
		Kind: entity.EventLog,
		Line: "Running: " + cmdline,
	}})

	go c.run(job, handle)

	return c.snapshotLocked(), nil
}

// Stop requests cooperative termination of the running job. It returns as
// soon as intent is signalled; the terminal transition happens only once
// the subprocess actually exits. Valid only while running.
func (c *Controller) Stop() error {
	c.mu.Lock()

	if c.state != entity.JobStateRunning {
		c.mu.Unlock()

		return errs.ErrNotRunning
	}

	c.setStateLocked(entity.JobStateStopping)
	handle := c.handle
	c.mu.Unlock()

	c.log.Info("stop requested")
	handle.Terminate()

	return nil
}

// State returns the current job state.
func (c *Controller) State() entity.JobState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// CurrentJob returns a snapshot of the current or most recent job,
// or nil if none was started yet.
func (c *Controller) CurrentJob() *entity.Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Subscribe registers an event channel and returns it with its
// unsubscribe function. Notifications arrive in the order the underlying
// output lines were produced; a subscriber that stops draining loses
// notifications once its buffer fills.
func (c *Controller) Subscribe() (<-chan Notification, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSubID
	c.nextSubID++

	buffer := c.cfg.Job.EventBuffer
	if buffer <= 0 {
		buffer = consts.DefaultEventBuffer
	}

	ch := make(chan Notification, buffer)
	c.subs[id] = ch

	unsubscribe := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()

		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// run is the single background worker for one job: it drains the line
// stream through the parser, forwards events, and drives the terminal
// transition after the subprocess exits.
func (c *Controller) run(job *entity.Job, handle *runner.Handle) {
	stopTimer := c.metrics.JobTimer()

	parser := progress.New()
	tail := newTail(c.tailSize())

	for line := range handle.Lines() {
		event := parser.Parse(line)

		c.metrics.RecordEvent(string(event.Kind))

		switch event.Kind {
		case entity.EventItemCompleted:
			c.metrics.ItemsCompleted.Inc()
		case entity.EventItemSkipped:
			c.metrics.ItemsSkipped.Inc()
		case entity.EventError:
			tail.add(event.Message)
		}

		c.publish(Notification{Event: &event})
	}

	status := handle.Wait()
	stopTimer()

	c.finish(job, status, tail.lines())
}

func (c *Controller) finish(job *entity.Job, status runner.ExitStatus, errorTail []string) {
	c.mu.Lock()

	stopped := c.state == entity.JobStateStopping

	job.ExitCode = status.Code
	job.FinishedAt = time.Now()
	job.Stopped = stopped

	var final entity.JobState

	switch {
	case stopped:
		// Best-effort stop: partially downloaded items stay incomplete but
		// uncorrupted, so a stop is a completion, not a failure.
		final = entity.JobStateCompleted
	case status.Code == 0:
		final = entity.JobStateCompleted
	default:
		final = entity.JobStateFailed
		job.ErrorTail = errorTail
	}

	c.handle = nil
	c.setStateLocked(final)
	c.mu.Unlock()

	switch {
	case stopped:
		c.metrics.RecordJobCompleted(true)
		c.metrics.RecordProcessExit("killed")
	case final == entity.JobStateCompleted:
		c.metrics.RecordJobCompleted(false)
		c.metrics.RecordProcessExit("ok")
	default:
		c.metrics.RecordJobFailed()
		c.metrics.RecordProcessExit("error")
	}

	c.log.Info("job finished",
		"job", job,
		slog.String("state", string(final)),
		slog.Int("error_tail_len", len(errorTail)))
}

// setStateLocked transitions the state and notifies subscribers.
// Caller holds c.mu.
func (c *Controller) setStateLocked(state entity.JobState) {
	c.state = state

	change := entity.StateChange{State: state}
	if c.job != nil {
		c.job.State = state
		change.JobUUID = c.job.UUID
	}

	c.publish(Notification{State: &change})
}

func (c *Controller) snapshotLocked() *entity.Job {
	if c.job == nil {
		return nil
	}

	snapshot := *c.job

	return &snapshot
}

func (c *Controller) publish(n Notification) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for id, ch := range c.subs {
		select {
		case ch <- n:
		default:
			c.log.Warn("subscriber buffer full, dropping notification", slog.Int("subscriber", id))
		}
	}
}

func (c *Controller) tailSize() int {
	if c.cfg.Job.ErrorTailSize > 0 {
		return c.cfg.Job.ErrorTailSize
	}

	return consts.DefaultErrorTailSize
}

// tail keeps the last n non-empty lines.
type tail struct {
	max   int
	items []string
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	if line == "" {
		return
	}

	t.items = append(t.items, line)
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

func (t *tail) lines() []string {
	return t.items
}
