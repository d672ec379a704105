// Package errs defines common error variables used across the application.
package errs

import "errors"

// Parameter errors, rejected before anything is spawned.
var (
	// ErrInvalidParameters indicates that the job parameters failed validation.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrEmptyURL indicates that the playlist URL is empty.
	ErrEmptyURL = errors.New("playlist url is empty")
	// ErrMalformedURL indicates that the playlist URL is not http(s) URL-shaped.
	ErrMalformedURL = errors.New("playlist url is malformed")
	// ErrBadDestination indicates that the destination root does not exist and cannot be created.
	ErrBadDestination = errors.New("destination root is not writable")
	// ErrBadConcurrency indicates that the concurrency setting is not a positive integer.
	ErrBadConcurrency = errors.New("concurrency must be positive")
)

// Controller errors.
var (
	// ErrAlreadyRunning indicates that a job is already in flight.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrNotRunning indicates that stop was called with no running job.
	ErrNotRunning = errors.New("no job running")
)

// Runner errors.
var (
	// ErrSpawn indicates that the external tool could not be located or started.
	ErrSpawn = errors.New("spawn failed")
)

// Archive errors.
var (
	// ErrArchiveEntryNotFound indicates that the identifier is not present in the ledger.
	ErrArchiveEntryNotFound = errors.New("archive entry not found")
)

// Dependency errors.
var (
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform is not supported.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)
