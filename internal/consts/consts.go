// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultConcurrency is the default number of concurrent fragments yt-dlp fetches.
	DefaultConcurrency = 8
	// DefaultGracePeriod is how long a stopping process gets before it is killed.
	DefaultGracePeriod = 5 * time.Second
	// DefaultErrorTailSize is how many trailing error lines a failed job carries.
	DefaultErrorTailSize = 20
	// DefaultEventBuffer is the per-subscriber event channel capacity.
	DefaultEventBuffer = 256
)

// Files.
const (
	// ArchiveFilename is the ledger file yt-dlp maintains at the destination root.
	ArchiveFilename = "archive.txt"
	// OutputTemplate numbers items by playlist position, unpadded, merged into mp4.
	OutputTemplate = "%(playlist_title)s/%(playlist_index)d - %(title)s.%(ext)s"
)

// Binary identifiers.
const (
	// BinaryYTdlp is the download-and-mux tool identifier.
	BinaryYTdlp = "yt-dlp"
	// BinaryFFmpeg is the media muxer identifier, invoked by yt-dlp itself.
	BinaryFFmpeg = "ffmpeg"
)
