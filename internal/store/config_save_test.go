package store

import (
	"fmt"
	"sync"
	"testing"
)

func TestLoadConfig_MissingFileIsEmpty(t *testing.T) {
	t.Setenv("TASKSYNC_CONFIG_DIR", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CurrentUser != "" || cfg.Backend != "" {
		t.Fatalf("expected empty config; got %+v", cfg)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("TASKSYNC_CONFIG_DIR", t.TempDir())

	if err := SaveConfig(&GlobalConfig{CurrentUser: "user-7", Backend: BackendMemory, LogLevel: "debug"}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CurrentUser != "user-7" || cfg.Backend != BackendMemory || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestSaveConfig_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("TASKSYNC_CONFIG_DIR", t.TempDir())

	if err := SaveConfig(&GlobalConfig{Backend: "postgres"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestSaveConfig_ConcurrentWriters_DoesNotCorruptConfig(t *testing.T) {
	t.Setenv("TASKSYNC_CONFIG_DIR", t.TempDir())

	const n = 32
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := SaveConfig(&GlobalConfig{CurrentUser: fmt.Sprintf("user-%d", i)}); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent SaveConfig: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig after concurrent writes: %v", err)
	}
	if cfg.CurrentUser == "" {
		t.Fatalf("expected one writer to win")
	}
}
