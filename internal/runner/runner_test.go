//go:build unix

package runner_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"plistdl/internal/errs"
	"plistdl/internal/runner"
)

func newTestRunner(grace time.Duration) *runner.Runner {
	return runner.New(slog.Default(), grace)
}

func drain(h *runner.Handle) []runner.Line {
	var lines []runner.Line
	for line := range h.Lines() {
		lines = append(lines, line)
	}

	return lines
}

func TestSpawnMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := newTestRunner(0).Spawn(t.Context(), "definitely-not-a-real-binary", nil, t.TempDir())
	if !errors.Is(err, errs.ErrSpawn) {
		t.Errorf("expected ErrSpawn, got: %v", err)
	}
}

func TestSpawnStreamsBothStreams(t *testing.T) {
	t.Parallel()

	script := `printf 'out1\nout2\n'; printf 'err1\n' >&2`

	handle, err := newTestRunner(0).Spawn(t.Context(), "sh", []string{"-c", script}, t.TempDir())
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}

	var stdout, stderr []string

	for _, line := range drain(handle) {
		switch line.Stream {
		case runner.StreamStdout:
			stdout = append(stdout, line.Text)
		case runner.StreamStderr:
			stderr = append(stderr, line.Text)
		}
	}

	if len(stdout) != 2 || stdout[0] != "out1" || stdout[1] != "out2" {
		t.Errorf("unexpected stdout lines: %v", stdout)
	}

	if len(stderr) != 1 || stderr[0] != "err1" {
		t.Errorf("unexpected stderr lines: %v", stderr)
	}

	status := handle.Wait()
	if status.Code != 0 || status.WasKilled {
		t.Errorf("unexpected exit status: %+v", status)
	}
}

func TestSpawnSplitsCarriageReturns(t *testing.T) {
	t.Parallel()

	script := `printf '10%%\r20%%\r30%%\n'`

	handle, err := newTestRunner(0).Spawn(t.Context(), "sh", []string{"-c", script}, t.TempDir())
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}

	lines := drain(handle)
	handle.Wait()

	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %v", len(lines), lines)
	}

	want := []string{"10%", "20%", "30%"}
	for i, line := range lines {
		if line.Text != want[i] {
			t.Errorf("line %d: got %q, want %q", i, line.Text, want[i])
		}
	}
}

func TestWaitReportsExitCode(t *testing.T) {
	t.Parallel()

	handle, err := newTestRunner(0).Spawn(t.Context(), "sh", []string{"-c", "exit 3"}, t.TempDir())
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}

	drain(handle)

	status := handle.Wait()
	if status.Code != 3 {
		t.Errorf("got exit code %d, want 3", status.Code)
	}

	if status.WasKilled {
		t.Error("process exited on its own, WasKilled should be false")
	}
}

func TestTerminateInterruptsSleepingProcess(t *testing.T) {
	t.Parallel()

	// The trap makes sh exit cleanly on SIGINT; without it sh would
	// ignore the interrupt while sleep runs in the foreground.
	script := `trap 'exit 0' INT; echo ready; sleep 60 & wait $!`

	handle, err := newTestRunner(2*time.Second).Spawn(t.Context(), "sh", []string{"-c", script}, t.TempDir())
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}

	// wait for the first line so the trap is installed
	if _, ok := <-handle.Lines(); !ok {
		t.Fatal("no output before termination")
	}

	handle.Terminate()
	handle.Terminate() // idempotent

	drain(handle)

	done := make(chan runner.ExitStatus, 1)
	go func() { done <- handle.Wait() }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after Terminate")
	}
}

func TestContextCancelTerminates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	script := `trap 'exit 0' INT; echo ready; sleep 60 & wait $!`

	handle, err := newTestRunner(2*time.Second).Spawn(ctx, "sh", []string{"-c", script}, t.TempDir())
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}

	if _, ok := <-handle.Lines(); !ok {
		t.Fatal("no output before cancellation")
	}

	cancel()

	drain(handle)

	done := make(chan struct{})
	go func() { handle.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after context cancellation")
	}
}

func TestTerminateAfterExitIsNoOp(t *testing.T) {
	t.Parallel()

	handle, err := newTestRunner(0).Spawn(t.Context(), "sh", []string{"-c", "true"}, t.TempDir())
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}

	drain(handle)
	handle.Wait()

	handle.Terminate()
}
