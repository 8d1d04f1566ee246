package trigger

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetload/internal/source"
)

func TestWatcher_Run(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "uploads", "entrada", "horas"), 0o755))

	handler := &recordingHandler{}
	w := NewWatcher(source.NewDirStore(root), handler, "uploads", 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}

	dir := filepath.Join(root, "uploads", "entrada", "horas")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$jan.xlsx"), []byte("lock"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.xlsx"), []byte("part 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jan.xlsx"), []byte("part 1 part 2"), 0o644))

	assert.Eventually(t, func() bool {
		return len(handler.Paths()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	// Let any straggling timer fire before checking the writes were debounced.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, []string{"entrada/horas/jan.xlsx"}, handler.Paths())

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestDebouncer_RunsOncePerQuietKey(t *testing.T) {
	d := newDebouncer(50 * time.Millisecond)
	var calls atomic.Int32
	for range 5 {
		d.schedule("jan.xlsx", func() { calls.Add(1) })
	}
	d.schedule("feb.xlsx", func() { calls.Add(1) })

	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)

	d.stop()
	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, d.timers)
}

func TestDebouncer_LateCallbackKeepsNewerTimer(t *testing.T) {
	d := newDebouncer(time.Hour)

	d.schedule("jan.xlsx", func() {})
	d.mu.Lock()
	first := d.timers["jan.xlsx"]
	d.mu.Unlock()

	d.schedule("jan.xlsx", func() {})

	// The first timer's callback reaches its cleanup after the reschedule.
	d.mu.Lock()
	second := d.timers["jan.xlsx"]
	d.forget("jan.xlsx", first)
	got, ok := d.timers["jan.xlsx"]
	d.mu.Unlock()

	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Same(t, second, got)

	d.stop()
	assert.Empty(t, d.timers)
}

func TestIsTemporaryPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/in/uploads/jan.xlsx", false},
		{"/in/uploads/~$jan.xlsx", true},
		{"/in/uploads/.jan.xlsx.swp", true},
		{"/in/uploads/jan.xlsx.part", true},
	}
	for _, tt := range tests {
		if got := IsTemporaryPath(tt.path); got != tt.want {
			t.Errorf("IsTemporaryPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
