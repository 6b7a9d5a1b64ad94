package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/phsayre/pdf-uploader/internal/pipeline"
)

// fakeRunner counts passes and lets a test hook into each one.
type fakeRunner struct {
	mu     sync.Mutex
	passes int
	onPass func(n int, ctx context.Context)
	err    error
}

func (r *fakeRunner) Run(ctx context.Context) (*pipeline.RunResult, error) {
	r.mu.Lock()
	r.passes++
	n := r.passes
	r.mu.Unlock()

	if r.onPass != nil {
		r.onPass(n, ctx)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.RunResult{Uploaded: 1}, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes
}

func writeLooper(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.Logger = zaptest.NewLogger(t)
	return cfg
}

func TestNewWithConfig_Validation(t *testing.T) {
	if _, err := NewWithConfig(nil, nil); err == nil {
		t.Error("NewWithConfig() should reject a nil runner")
	}
	if _, err := NewWithConfig(&fakeRunner{}, &Config{Interval: -time.Second}); err == nil {
		t.Error("NewWithConfig() should reject a negative interval")
	}
	d, err := New(&fakeRunner{})
	if err != nil {
		t.Fatal(err)
	}
	if d.config.Interval != time.Second {
		t.Errorf("default interval = %v", d.config.Interval)
	}
}

func TestReadLooper(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		content string
		want    bool
	}{
		{"true", true},
		{" TRUE\r\n", true},
		{"True", true},
		{"false", false},
		{"", false},
		{"yes", false},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, "looper.txt")
		writeLooper(t, path, tt.content)
		got, err := ReadLooper(path)
		if err != nil {
			t.Fatalf("ReadLooper(%q) error = %v", tt.content, err)
		}
		if got != tt.want {
			t.Errorf("ReadLooper(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}

	if _, err := ReadLooper(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("ReadLooper() should fail for a missing file")
	}
}

func TestStart_LooperFalseRunsOnce(t *testing.T) {
	looper := filepath.Join(t.TempDir(), "looper.txt")
	writeLooper(t, looper, "false")

	runner := &fakeRunner{}
	cfg := testConfig(t)
	cfg.LooperPath = looper
	d, err := NewWithConfig(runner, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if runner.count() != 1 {
		t.Errorf("passes = %d, want 1", runner.count())
	}
}

func TestStart_StopsWhenLooperFlips(t *testing.T) {
	looper := filepath.Join(t.TempDir(), "looper.txt")
	writeLooper(t, looper, "true")

	runner := &fakeRunner{}
	runner.onPass = func(n int, ctx context.Context) {
		if n == 3 {
			writeLooper(t, looper, "false")
		}
	}
	cfg := testConfig(t)
	cfg.LooperPath = looper
	d, err := NewWithConfig(runner, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if runner.count() != 3 {
		t.Errorf("passes = %d, want 3", runner.count())
	}
	stats := d.GetStats()
	if stats.Passes != 3 || stats.Uploaded != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStart_MissingLooperStops(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig(t)
	cfg.LooperPath = filepath.Join(t.TempDir(), "missing.txt")
	d, err := NewWithConfig(runner, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if runner.count() != 1 {
		t.Errorf("passes = %d, want 1", runner.count())
	}
}

func TestStart_CancelFinishesPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var passCtxErr error
	runner := &fakeRunner{}
	runner.onPass = func(n int, passCtx context.Context) {
		cancel()
		passCtxErr = passCtx.Err()
	}

	d, err := NewWithConfig(runner, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if runner.count() != 1 {
		t.Errorf("passes = %d, want 1", runner.count())
	}
	if passCtxErr != nil {
		t.Errorf("pass context was cancelled: %v", passCtxErr)
	}
}

func TestStart_PassErrorsAreCounted(t *testing.T) {
	looper := filepath.Join(t.TempDir(), "looper.txt")
	writeLooper(t, looper, "true")

	runner := &fakeRunner{err: errors.New("watch directory missing")}
	runner.onPass = func(n int, ctx context.Context) {
		if n == 2 {
			writeLooper(t, looper, "false")
		}
	}
	cfg := testConfig(t)
	cfg.LooperPath = looper
	d, err := NewWithConfig(runner, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stats := d.GetStats(); stats.Errors != 2 || stats.Uploaded != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStart_WatchWakesEarly(t *testing.T) {
	watchDir := t.TempDir()
	passed := make(chan int, 10)

	runner := &fakeRunner{}
	runner.onPass = func(n int, ctx context.Context) { passed <- n }

	cfg := testConfig(t)
	cfg.Interval = time.Hour
	cfg.DebounceInterval = 20 * time.Millisecond
	cfg.WatchDir = watchDir
	d, err := NewWithConfig(runner, cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	select {
	case <-passed:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass did not run")
	}

	if err := os.WriteFile(filepath.Join(watchDir, "1001.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-passed:
		if n != 2 {
			t.Errorf("pass = %d, want 2", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("arrival did not trigger a pass")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestFileWatcher_Arrivals(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := fw.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer fw.Stop()

	if !fw.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := fw.Start(dir); err == nil {
		t.Error("second Start() should fail")
	}

	path := filepath.Join(dir, "a.pdf")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-fw.Events():
		if filepath.Base(got) != "a.pdf" {
			t.Errorf("event path = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for created file")
	}
}

func TestFileWatcher_Stop(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := fw.Start(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if fw.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if _, ok := <-fw.Events(); ok {
		t.Error("Events() should be closed after Stop")
	}
}
