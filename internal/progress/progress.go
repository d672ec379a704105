// Package progress classifies raw yt-dlp output lines into structured events.
//
// The recognized patterns track the tool's current textual conventions and
// change between tool versions; classification is lenient on purpose, and
// anything unmatched degrades to a log event rather than an error. One line
// in, one event out, in input order.
package progress

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"plistdl/internal/entity"
	"plistdl/internal/runner"
)

const (
	// SkipReasonArchived is the reason carried by item_skipped events.
	SkipReasonArchived = "already-archived"

	clockFieldsMax = 3
)

var (
	// [download] Destination: Playlist Title/3 - Some Video.f137.mp4
	reDestination = regexp.MustCompile(`^\[download\] Destination: (.+)$`)
	// [download] Downloading item 3 of 25
	reItemOf = regexp.MustCompile(`^\[download\] Downloading item (\d+) of (\d+)$`)
	// [download]  45.2% of 120.00MiB at 2.50MiB/s ETA 00:12
	rePercentETA = regexp.MustCompile(`(\d+(?:\.\d+)?)%.*\bETA\s+([0-9:]+|Unknown)`)
	// [download] 100% of  120.00MiB in 00:00:45 at 2.65MiB/s
	reCompleted = regexp.MustCompile(`^\[download\] 100% of .+ in [0-9:]+`)
	// [Merger] Merging formats into "Playlist Title/3 - Some Video.mp4"
	reMerge = regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`)
	// 3 - Some Video.f137.mp4 (format suffix optional)
	reIndexedName = regexp.MustCompile(`^(\d+) - (.+?)(?:\.f\d+)?\.[A-Za-z0-9]+$`)
)

// Parser is a streaming line classifier. It carries the current item's
// index and title between lines, since yt-dlp does not repeat them on
// every progress sample. Not safe for concurrent use; the job's single
// reader goroutine is the only caller.
type Parser struct {
	itemIndex int
	itemTitle string
}

// New creates a Parser for one job's output.
func New() *Parser {
	return &Parser{}
}

// Parse classifies one raw line into exactly one event.
func (p *Parser) Parse(line runner.Line) entity.ProgressEvent {
	text := strings.TrimSpace(line.Text)

	if m := reItemOf.FindStringSubmatch(text); m != nil {
		// Position announcement only; the interesting events follow.
		if idx, err := strconv.Atoi(m[1]); err == nil {
			p.itemIndex = idx
		}
		p.itemTitle = ""

		return entity.ProgressEvent{Kind: entity.EventLog, Line: line.Text}
	}

	if m := reDestination.FindStringSubmatch(text); m != nil {
		p.noteDestination(m[1])

		return entity.ProgressEvent{
			Kind:  entity.EventItemStarted,
			Index: p.itemIndex,
			Title: p.itemTitle,
			Line:  line.Text,
		}
	}

	if isArchiveSkip(text) {
		return entity.ProgressEvent{
			Kind:    entity.EventItemSkipped,
			Index:   p.itemIndex,
			Title:   p.itemTitle,
			Message: SkipReasonArchived,
			Line:    line.Text,
		}
	}

	if reCompleted.MatchString(text) {
		return entity.ProgressEvent{
			Kind:  entity.EventItemCompleted,
			Index: p.itemIndex,
			Title: p.itemTitle,
			Line:  line.Text,
		}
	}

	if m := rePercentETA.FindStringSubmatch(text); m != nil {
		percent, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return entity.ProgressEvent{
				Kind:       entity.EventDownloadProgress,
				Index:      p.itemIndex,
				Title:      p.itemTitle,
				Percent:    percent,
				ETASeconds: parseClock(m[2]),
				Line:       line.Text,
			}
		}
	}

	if m := reMerge.FindStringSubmatch(text); m != nil {
		p.noteDestination(m[1])

		return entity.ProgressEvent{
			Kind:  entity.EventMergeStarted,
			Index: p.itemIndex,
			Line:  line.Text,
		}
	}

	if line.Stream == runner.StreamStderr || strings.Contains(text, "ERROR:") {
		return entity.ProgressEvent{
			Kind:    entity.EventError,
			Message: text,
			Line:    line.Text,
		}
	}

	return entity.ProgressEvent{Kind: entity.EventLog, Line: line.Text}
}

// noteDestination extracts the playlist index and title from an output
// path shaped by the "<index> - <title>.<ext>" template.
func (p *Parser) noteDestination(dest string) {
	base := path.Base(strings.ReplaceAll(dest, `\`, "/"))

	m := reIndexedName.FindStringSubmatch(base)
	if m == nil {
		return
	}

	if idx, err := strconv.Atoi(m[1]); err == nil {
		p.itemIndex = idx
	}

	p.itemTitle = m[2]
}

func isArchiveSkip(text string) bool {
	return strings.Contains(text, "has already been downloaded") ||
		strings.Contains(text, "has already been recorded in the archive")
}

// parseClock converts "mm:ss" or "hh:mm:ss" to seconds; unknown forms yield 0.
func parseClock(clock string) int {
	fields := strings.Split(clock, ":")
	if len(fields) > clockFieldsMax {
		return 0
	}

	seconds := 0

	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return 0
		}

		seconds = seconds*60 + n
	}

	return seconds
}
