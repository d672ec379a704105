package entity

import "log/slog"

// EventKind tags a ProgressEvent variant.
type EventKind string

const (
	// EventItemStarted indicates that the tool announced a download destination for an item.
	EventItemStarted EventKind = "item_started"
	// EventDownloadProgress carries a percent/ETA sample for the current item.
	EventDownloadProgress EventKind = "download_progress"
	// EventItemCompleted indicates that an item finished downloading.
	EventItemCompleted EventKind = "item_completed"
	// EventItemSkipped indicates that the item is already recorded in the archive ledger.
	EventItemSkipped EventKind = "item_skipped"
	// EventMergeStarted indicates that the muxer began merging formats for an item.
	EventMergeStarted EventKind = "merge_started"
	// EventError carries an error diagnostic line.
	EventError EventKind = "error"
	// EventLog carries any line the parser did not recognize.
	EventLog EventKind = "log"
)

// ProgressEvent is an immutable snapshot produced by the progress parser.
// Exactly one event is emitted per raw output line, in input order.
// Fields beyond Kind and Line are populated only where the variant carries them.
type ProgressEvent struct {
	Kind       EventKind `json:"kind"`
	Index      int       `json:"index,omitempty"`
	Title      string    `json:"title,omitempty"`
	Percent    float64   `json:"percent,omitempty"`
	ETASeconds int       `json:"etaSeconds,omitempty"`
	Message    string    `json:"message,omitempty"`
	Line       string    `json:"line"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (e ProgressEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(e.Kind)),
		slog.Int("index", e.Index),
		slog.String("title", e.Title),
		slog.Float64("percent", e.Percent),
		slog.Int("eta_seconds", e.ETASeconds),
		slog.String("message", e.Message),
	)
}

// StateChange notifies subscribers of a job state transition.
type StateChange struct {
	JobUUID string   `json:"jobUuid"`
	State   JobState `json:"state"`
}
