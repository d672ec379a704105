// Package command maps job parameters to the yt-dlp invocation.
package command

import (
	"strconv"

	"plistdl/internal/archive"
	"plistdl/internal/consts"
	"plistdl/internal/entity"
)

// Invocation is a ready-to-spawn yt-dlp call.
type Invocation struct {
	Args    []string
	WorkDir string
}

// Build is a pure function from parameters to the tool's argument list.
// The playlist subfolder is resolved by yt-dlp from the output template,
// not precomputed here. Fails before anything is spawned if the
// parameters are invalid.
func Build(params entity.JobParameters) (Invocation, error) {
	params = params.Normalize()

	if err := params.Validate(); err != nil {
		return Invocation{}, err
	}

	ledger := archive.New(params.DestinationRoot)

	args := []string{
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"--concurrent-fragments", strconv.Itoa(params.Concurrency),
		"--ignore-errors",
		"--embed-metadata",
		"--newline",
		"--download-archive", ledger.Path(),
		"-o", consts.OutputTemplate,
		"--paths", params.DestinationRoot,
	}

	if params.CookieFile != "" {
		args = append(args, "--cookies", params.CookieFile)
	}

	args = append(args, params.PlaylistURL)

	return Invocation{Args: args, WorkDir: params.DestinationRoot}, nil
}
