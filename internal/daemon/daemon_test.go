package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTestConfigFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "gafferd.ini")
	content := fmt.Sprintf(`
[endpoint:main]
bind = tcp://127.0.0.1:0

[process:web]
cmd = /bin/sh
args = -c "sleep 30"
numprocesses = 1
`)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{
		ConfigFile: writeTestConfigFile(t, dir),
		PIDFile:    filepath.Join(dir, "gafferd.pid"),
		KeysDBPath: filepath.Join(dir, "keys.db"),
		NoAuth:     true,
	}
	d, err := New(cfg)
	require.NoError(t, err)
	return d
}

func TestDaemonStartRegistersConfiguredJobs(t *testing.T) {
	d := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(d.Manager().ListJobs()) == 1
	}, time.Second, 10*time.Millisecond)

	assert := require.New(t)
	assert.Contains(d.Manager().ListJobs(), "web")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, d.Shutdown(shutdownCtx))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestDaemonAcquiresAndReleasesPIDFile(t *testing.T) {
	d := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(d.cfg.PIDFile)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, d.Shutdown(shutdownCtx))
	<-done

	_, err := os.Stat(d.cfg.PIDFile)
	require.True(t, os.IsNotExist(err))
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		ConfigFile: writeTestConfigFile(t, dir),
		PIDFile:    filepath.Join(dir, "gafferd.pid"),
		KeysDBPath: filepath.Join(dir, "keys.db"),
		NoAuth:     true,
	}
	require.NoError(t, os.WriteFile(cfg.PIDFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644))

	d, err := New(cfg)
	require.NoError(t, err)

	err = d.Start(context.Background())
	require.Error(t, err)
}
