package config_test

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"plistdl/internal/config"
)

//go:embed testdata/.env.custom
var envCustom []byte

func parseEnv(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid line %d: %q", lineNo, line)
		}

		env[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env: %w", err)
	}

	return env, nil
}

func applyEnv(env map[string]string) error {
	os.Clearenv()

	for key, value := range env {
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("apply env: %w", err)
		}
	}

	return nil
}

func TestNewDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if cfg.App.LogLevel != "info" || cfg.App.LogFormat != "json" {
		t.Errorf("unexpected app defaults: %+v", cfg.App)
	}

	if cfg.Job.Concurrency != 8 {
		t.Errorf("got concurrency %d, want 8", cfg.Job.Concurrency)
	}

	if cfg.Job.GracePeriod != 5*time.Second {
		t.Errorf("got grace period %v, want 5s", cfg.Job.GracePeriod)
	}

	if cfg.Job.ErrorTailSize != 20 {
		t.Errorf("got error tail size %d, want 20", cfg.Job.ErrorTailSize)
	}

	if cfg.Metrics.Enabled {
		t.Error("metrics enabled by default")
	}

	if !cfg.DepManager.UseSystemBinaries {
		t.Error("system binaries disabled by default")
	}

	if !filepath.IsAbs(cfg.Dir.Downloads) {
		t.Errorf("expected absolute downloads path, got %s", cfg.Dir.Downloads)
	}

	if !filepath.IsAbs(cfg.DepManager.BinsDir) {
		t.Errorf("expected absolute bins path, got %s", cfg.DepManager.BinsDir)
	}

	if cfg.Dir.CookieFile != "" {
		t.Errorf("expected empty cookie file default, got %s", cfg.Dir.CookieFile)
	}
}

func TestNewCustomEnv(t *testing.T) {
	env, err := parseEnv(bytes.NewReader(envCustom))
	if err != nil {
		t.Fatalf("parseEnv() failed: %v", err)
	}

	if err := applyEnv(env); err != nil {
		t.Fatalf("applyEnv() failed: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if cfg.App.LogLevel != "debug" || cfg.App.LogFormat != "text" {
		t.Errorf("unexpected app config: %+v", cfg.App)
	}

	if cfg.Job.Concurrency != 4 {
		t.Errorf("got concurrency %d, want 4", cfg.Job.Concurrency)
	}

	if cfg.Job.GracePeriod != 10*time.Second {
		t.Errorf("got grace period %v, want 10s", cfg.Job.GracePeriod)
	}

	if cfg.Job.ErrorTailSize != 50 || cfg.Job.EventBuffer != 64 {
		t.Errorf("unexpected job config: %+v", cfg.Job)
	}

	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9191" {
		t.Errorf("unexpected metrics config: %+v", cfg.Metrics)
	}

	if cfg.DepManager.UseSystemBinaries {
		t.Error("expected downloaded binaries mode")
	}

	if !filepath.IsAbs(cfg.Dir.Downloads) || !strings.HasSuffix(cfg.Dir.Downloads, filepath.Join("data", "downloads")) {
		t.Errorf("unexpected downloads dir: %s", cfg.Dir.Downloads)
	}

	if !filepath.IsAbs(cfg.Dir.CookieFile) {
		t.Errorf("expected absolute cookie path, got %s", cfg.Dir.CookieFile)
	}
}
