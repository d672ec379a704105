// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	App        App
	Job        Job
	Dir        Dir
	Metrics    Metrics
	DepManager DepManager
}

// App holds application-wide configuration.
type App struct {
	LogLevel  string `env:"PLISTDL_APP_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"PLISTDL_APP_LOG_FORMAT" envDefault:"json"` // json or text
}

// Job holds job orchestration configuration.
type Job struct {
	// Concurrency is the default fragment parallelism passed to yt-dlp
	// when the job parameters leave it unset.
	Concurrency int `env:"PLISTDL_JOB_CONCURRENCY" envDefault:"8"`
	// GracePeriod is how long a stopping yt-dlp process gets before SIGKILL.
	GracePeriod time.Duration `env:"PLISTDL_JOB_GRACE_PERIOD" envDefault:"5s"`
	// ErrorTailSize bounds the buffer of trailing error lines kept for diagnostics.
	ErrorTailSize int `env:"PLISTDL_JOB_ERROR_TAIL_SIZE" envDefault:"20"`
	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int `env:"PLISTDL_JOB_EVENT_BUFFER" envDefault:"256"`
}

// Dir holds default directory paths.
type Dir struct {
	// Downloads is the default destination root when the shell supplies none.
	Downloads string `env:"PLISTDL_DIR_DOWNLOADS" envDefault:"./downloads"`

	// must contain a Netscape-format cookies.txt file
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"PLISTDL_DIR_COOKIE_FILE" envDefault:""`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	return nil
}

// Metrics holds the Prometheus endpoint configuration.
type Metrics struct {
	Enabled         bool          `env:"PLISTDL_METRICS_ENABLED"          envDefault:"false"`
	Addr            string        `env:"PLISTDL_METRICS_ADDR"             envDefault:":9090"`
	ShutdownTimeout time.Duration `env:"PLISTDL_METRICS_SHUTDOWN_TIMEOUT" envDefault:"3s"`
}

// DepManager holds binary dependency management configuration.
type DepManager struct {
	// BinsDir is the directory where binaries are stored
	BinsDir string `env:"PLISTDL_DEPMANAGER_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries indicates whether to use system-installed binaries or download them.
	UseSystemBinaries bool `env:"PLISTDL_DEPMANAGER_USE_SYSTEM_BINARIES" envDefault:"true"`
	// UpdateInterval is how often to check for binary updates
	UpdateInterval time.Duration `env:"PLISTDL_DEPMANAGER_UPDATE_INTERVAL" envDefault:"24h"`

	// yt-dlp binary URLs per platform.
	YTdlpSHA256SumsURL string `env:"PLISTDL_DEPMANAGER_YTDLP_SHA256SUMS_URL" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/SHA2-256SUMS"`      //nolint:lll
	YTdlpLinuxARM64    string `env:"PLISTDL_DEPMANAGER_YTDLP_LINUX_ARM64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"` //nolint:lll
	YTdlpLinuxAMD64    string `env:"PLISTDL_DEPMANAGER_YTDLP_LINUX_AMD64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`         //nolint:lll

	// ffmpeg binary URLs per platform.
	FFmpegSHA256SumsURL string `env:"PLISTDL_DEPMANAGER_FFMPEG_SHA256SUMS_URL" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/checksums.sha256"`                        //nolint:lll
	FFmpegLinuxARM64    string `env:"PLISTDL_DEPMANAGER_FFMPEG_LINUX_ARM64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64    string `env:"PLISTDL_DEPMANAGER_FFMPEG_LINUX_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (d *DepManager) SetAbsPaths() error {
	var err error
	if d.BinsDir, err = filepath.Abs(d.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.DepManager.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set dep manager absolute paths: %w", err)
	}

	return cfg, nil
}
