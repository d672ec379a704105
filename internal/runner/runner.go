// Package runner owns the lifecycle of one external-tool subprocess per job:
// spawning, line-streamed output, cooperative termination, and exit status.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"plistdl/internal/consts"
	"plistdl/internal/errs"
)

// Stream identifies which output stream a line came from.
type Stream string

// Output streams.
const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Line is one raw output line tagged with its stream of origin.
type Line struct {
	Stream Stream
	Text   string
}

// ExitStatus reports how the subprocess ended.
type ExitStatus struct {
	Code      int
	WasKilled bool
}

const (
	lineBufferSize    = 64
	scannerInitialBuf = 64 * 1024
	scannerMaxBuf     = 1024 * 1024
)

// Runner spawns subprocesses with a shared termination grace period.
type Runner struct {
	log   *slog.Logger
	grace time.Duration
}

// New creates a Runner.
func New(log *slog.Logger, gracePeriod time.Duration) *Runner {
	if gracePeriod <= 0 {
		gracePeriod = consts.DefaultGracePeriod
	}

	return &Runner{
		log:   log.With(slog.String("package", "runner")),
		grace: gracePeriod,
	}
}

// Handle is the exclusive handle to one running subprocess.
// One line sequence per process instance; it is not restartable.
type Handle struct {
	log   *slog.Logger
	cmd   *exec.Cmd
	lines chan Line
	grace time.Duration

	readers  sync.WaitGroup
	termOnce sync.Once

	done   chan struct{}
	status ExitStatus
}

// Spawn starts the binary with its output captured as line streams.
// Cancelling ctx requests termination the same way Terminate does.
// Returns errs.ErrSpawn if the executable cannot be located or started.
func (r *Runner) Spawn(ctx context.Context, bin string, args []string, workDir string) (*Handle, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrSpawn, err)
	}

	cmd := exec.Command(bin, args...)
	cmd.Dir = workDir
	// Own process group so termination reaches children the tool spawned (ffmpeg).
	cmd.SysProcAttr = sysProcAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", errs.ErrSpawn, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %w", errs.ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %w", errs.ErrSpawn, bin, err)
	}

	handle := &Handle{
		log:   r.log.With(slog.Int("pid", cmd.Process.Pid)),
		cmd:   cmd,
		lines: make(chan Line, lineBufferSize),
		grace: r.grace,
		done:  make(chan struct{}),
	}

	handle.readers.Add(2)
	go handle.read(StreamStdout, stdout)
	go handle.read(StreamStderr, stderr)

	go handle.finish()
	go handle.watch(ctx)

	return handle, nil
}

// Lines returns the merged output stream. The channel is closed when the
// subprocess closes both of its output streams.
func (h *Handle) Lines() <-chan Line {
	return h.lines
}

// Terminate requests graceful termination of the subprocess tree,
// escalating to SIGKILL after the grace period. Idempotent; terminating
// an already-exited process is a no-op.
func (h *Handle) Terminate() {
	h.termOnce.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}

		h.log.Debug("interrupting process group")

		if err := interruptGroup(h.cmd.Process); err != nil {
			h.log.Debug("interrupt process group", slog.Any("error", err))
		}

		go func() {
			timer := time.NewTimer(h.grace)
			defer timer.Stop()

			select {
			case <-h.done:
			case <-timer.C:
				h.log.Warn("grace period elapsed, killing process group")

				if err := killGroup(h.cmd.Process); err != nil {
					h.log.Debug("kill process group", slog.Any("error", err))
				}
			}
		}()
	})
}

// Wait blocks until the subprocess exits and returns its exit status.
func (h *Handle) Wait() ExitStatus {
	<-h.done

	return h.status
}

func (h *Handle) read(stream Stream, r io.Reader) {
	defer h.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerInitialBuf), scannerMaxBuf)
	// yt-dlp rewrites progress lines with bare carriage returns when it
	// thinks it has a terminal; split on either terminator.
	scanner.Split(splitByNewlineOrCR)

	for scanner.Scan() {
		h.lines <- Line{Stream: stream, Text: scanner.Text()}
	}
}

func (h *Handle) finish() {
	h.readers.Wait()
	close(h.lines)

	err := h.cmd.Wait()
	state := h.cmd.ProcessState

	h.status = ExitStatus{
		Code:      state.ExitCode(),
		WasKilled: !state.Exited(),
	}

	if err != nil {
		h.log.Debug("process exited",
			slog.Int("code", h.status.Code),
			slog.Bool("was_killed", h.status.WasKilled),
			slog.Any("error", err))
	}

	close(h.done)
}

func (h *Handle) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		h.Terminate()
	case <-h.done:
	}
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}

			return i + 1, data[:i], nil
		}
	}

	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}

	return 0, nil, nil
}
