package main

import (
	"bytes"
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	root := RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	require.NoError(t, root.Execute())
	assert.Equal(t, "treewalk dev\n", out.String())
}

func TestServeRejectsUnknownDriver(t *testing.T) {
	root := RootCommand()
	root.SetArgs([]string{"serve", "--storage-driver", "tape", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Setenv("TREEWALK_LOG_FORMAT", "discard")
	t.Setenv("TREEWALK_STORAGE_FS_ROOT", t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	root := RootCommand()
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--env-file", filepath.Join(t.TempDir(), "none.env")})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestWatchSignals_ReturnsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	require.NoError(t, watchSignals(ctx, func() { called = true }, log.Log))
	assert.False(t, called)
}

func TestWatchSignals_CancelsOnSIGTERM(t *testing.T) {
	// Keep SIGTERM from killing the test binary before watchSignals subscribes.
	guard := make(chan os.Signal, 16)
	signal.Notify(guard, syscall.SIGTERM)
	defer signal.Stop(guard)

	stopped := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- watchSignals(context.Background(), func() { once.Do(func() { close(stopped) }) }, log.Log)
	}()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-stopped:
			require.NoError(t, <-done)
			return
		case <-tick.C:
			require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
		case <-deadline:
			t.Fatal("watcher ignored SIGTERM")
		}
	}
}
