package safego

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	ran := false
	Go("test.run", func() {
		defer wg.Done()
		ran = true
	})

	waitOrFail(t, &wg)
	if !ran {
		t.Error("function body did not run")
	}
}

func TestGo_RecoversPanicAndLogsTask(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var wg sync.WaitGroup
	wg.Add(1)

	// Must not crash the test binary.
	Go("test.panic", func() {
		defer wg.Done()
		panic("intentional panic in test")
	})

	waitOrFail(t, &wg)

	// The deferred recover logs after wg.Done; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		out := buf.String()
		mu.Unlock()
		if strings.Contains(out, "task=test.panic") {
			if !strings.Contains(out, "intentional panic in test") {
				t.Errorf("log line missing panic value: %s", out)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("panic was not logged with its task label")
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
