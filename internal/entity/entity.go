// Package entity defines the core entities used in the application.
package entity

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plistdl/internal/errs"
	"plistdl/pkg/urls"
)

// JobState represents the lifecycle state of a download job.
type JobState string

const (
	// JobStateIdle indicates that no job has been started yet.
	JobStateIdle JobState = "idle"
	// JobStateRunning indicates that the external tool is working through the playlist.
	JobStateRunning JobState = "running"
	// JobStateStopping indicates that termination was requested and the tool has not exited yet.
	JobStateStopping JobState = "stopping"
	// JobStateCompleted indicates that the job finished, either naturally or via stop.
	JobStateCompleted JobState = "completed"
	// JobStateFailed indicates that the tool exited non-zero.
	JobStateFailed JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// JobParameters describes one playlist download request. Immutable once a job starts.
type JobParameters struct {
	PlaylistURL     string `json:"playlistUrl"`
	DestinationRoot string `json:"destinationRoot"`
	CookieFile      string `json:"cookieFile,omitempty"`
	Concurrency     int    `json:"concurrency"`
}

// Normalize trims surrounding whitespace from the path and URL fields.
// Defaults come from configuration before parameters reach this point;
// a zero concurrency here is a caller mistake, not an unset field.
func (p JobParameters) Normalize() JobParameters {
	p.PlaylistURL = strings.TrimSpace(p.PlaylistURL)
	p.DestinationRoot = strings.TrimSpace(p.DestinationRoot)
	p.CookieFile = strings.TrimSpace(p.CookieFile)

	return p
}

// Validate checks the parameters without touching the filesystem.
// All failures wrap errs.ErrInvalidParameters.
func (p JobParameters) Validate() error {
	if p.PlaylistURL == "" {
		return fmt.Errorf("%w: %w", errs.ErrInvalidParameters, errs.ErrEmptyURL)
	}

	if !urls.IsURLValid(p.PlaylistURL) {
		return fmt.Errorf("%w: %w: %q", errs.ErrInvalidParameters, errs.ErrMalformedURL, p.PlaylistURL)
	}

	if p.DestinationRoot == "" {
		return fmt.Errorf("%w: %w", errs.ErrInvalidParameters, errs.ErrBadDestination)
	}

	if p.Concurrency <= 0 {
		return fmt.Errorf("%w: %w: %d", errs.ErrInvalidParameters, errs.ErrBadConcurrency, p.Concurrency)
	}

	return nil
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (p JobParameters) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", p.PlaylistURL),
		slog.String("destination", p.DestinationRoot),
		slog.String("cookie_file", p.CookieFile),
		slog.Int("concurrency", p.Concurrency),
	)
}

// Job represents one playlist download. The controller owns exactly one at a time.
type Job struct {
	UUID       string        `json:"uuid"`
	Params     JobParameters `json:"params"`
	State      JobState      `json:"state"`
	Stopped    bool          `json:"stopped,omitempty"` // user-requested stop, not an error
	ExitCode   int           `json:"exitCode"`
	ErrorTail  []string      `json:"errorTail,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt,omitzero"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (j Job) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("uuid", j.UUID),
		slog.Any("params", j.Params),
		slog.String("state", string(j.State)),
		slog.Bool("stopped", j.Stopped),
		slog.Int("exit_code", j.ExitCode),
		slog.Time("started_at", j.StartedAt),
	)
}
