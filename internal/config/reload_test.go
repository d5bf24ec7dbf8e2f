package config_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tripwire/fswatch/internal/config"
)

// startReloader runs a Reloader for path and returns the channel reloaded
// configurations arrive on.
func startReloader(t *testing.T, path string) <-chan *config.Config {
	t.Helper()
	got := make(chan *config.Config, 4)
	r := config.NewReloader(path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(c *config.Config) {
		got <- c
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	// Give the watcher time to register before the test writes.
	time.Sleep(50 * time.Millisecond)
	return got
}

func TestReloader_PicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fswatch.yaml")
	if err := os.WriteFile(path, []byte("level: default\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got := startReloader(t, path)

	if err := os.WriteFile(path, []byte("level: all\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.Level != "all" {
			t.Errorf("reloaded Level = %q, want %q", cfg.Level, "all")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestReloader_FollowsRenameOverOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fswatch.yaml")
	if err := os.WriteFile(path, []byte("level: default\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got := startReloader(t, path)

	tmp := filepath.Join(dir, ".fswatch.yaml.swp")
	if err := os.WriteFile(tmp, []byte("events: [Deleted]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if len(cfg.Events) != 1 || cfg.Events[0] != "Deleted" {
			t.Errorf("reloaded Events = %v", cfg.Events)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after rename")
	}
}

func TestReloader_InvalidEditIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fswatch.yaml")
	if err := os.WriteFile(path, []byte("level: default\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got := startReloader(t, path)

	if err := os.WriteFile(path, []byte("level: deafening\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		t.Fatalf("invalid configuration delivered: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestReloader_MissingDirectory(t *testing.T) {
	r := config.NewReloader(filepath.Join(t.TempDir(), "gone", "fswatch.yaml"), nil, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error watching a missing directory, got nil")
	}
}
