package shellquote_test

import (
	"testing"

	"plistdl/pkg/shellquote"
)

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bin  string
		args []string
		want string
	}{
		{
			name: "no args",
			bin:  "/usr/bin/yt-dlp",
			args: nil,
			want: "/usr/bin/yt-dlp",
		},
		{
			name: "simple flags stay unquoted",
			bin:  "yt-dlp",
			args: []string{"--newline", "--ignore-errors"},
			want: "yt-dlp --newline --ignore-errors",
		},
		{
			name: "spaces force quotes",
			bin:  "yt-dlp",
			args: []string{"-o", "%(playlist_title)s/%(playlist_index)d - %(title)s.%(ext)s"},
			want: `yt-dlp -o "%(playlist_title)s/%(playlist_index)d - %(title)s.%(ext)s"`,
		},
		{
			name: "url with query chars",
			bin:  "yt-dlp",
			args: []string{"https://example.com/watch?v=a&b=1"},
			want: `yt-dlp "https://example.com/watch?v=a&b=1"`,
		},
		{
			name: "embedded double quote is escaped",
			bin:  "yt-dlp",
			args: []string{`a"b`},
			want: `yt-dlp "a\"b"`,
		},
		{
			name: "dollar sign is escaped",
			bin:  "yt-dlp",
			args: []string{"pa$s"},
			want: `yt-dlp "pa\$s"`,
		},
		{
			name: "backslash is escaped",
			bin:  "yt-dlp",
			args: []string{`C:\temp\file`},
			want: `yt-dlp "C:\\temp\\file"`,
		},
		{
			name: "empty arg",
			bin:  "yt-dlp",
			args: []string{""},
			want: `yt-dlp ""`,
		},
		{
			name: "newline becomes escape sequence",
			bin:  "yt-dlp",
			args: []string{"line1\nline2"},
			want: `yt-dlp "line1\nline2"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := shellquote.Join(tc.bin, tc.args)
			if got != tc.want {
				t.Errorf("Join() mismatch\n got: %q\nwant: %q", got, tc.want)
			}
		})
	}
}
