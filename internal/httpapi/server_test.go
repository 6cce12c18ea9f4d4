package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/iniconfig"
	"github.com/RevCBH/gafferd/internal/keymanager"
	"github.com/RevCBH/gafferd/internal/keystore"
	"github.com/RevCBH/gafferd/internal/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, noAuth bool) (*Server, string) {
	t.Helper()
	bus := events.NewBus()
	mgr := manager.New(bus)

	backend := keystore.NewSQLite(keystore.MemoryDSN)
	require.NoError(t, backend.Open())
	t.Cleanup(func() { backend.Close() })
	keys, err := keymanager.New(backend, bus, 10)
	require.NoError(t, err)

	s := New(Config{
		Endpoints: []iniconfig.EndpointSpec{{Name: "test", Bind: "tcp://127.0.0.1:0"}},
		NoAuth:    noAuth,
	}, mgr, keys, bus)

	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	require.Eventually(t, func() bool { return s.Addrs()["test"] != "" }, time.Second, 10*time.Millisecond)
	return s, s.Addrs()["test"]
}

func TestHTTPAPIAddAndListJob(t *testing.T) {
	_, addr := newTestServer(t, true)
	base := "http://" + addr

	body, _ := json.Marshal(addJobRequest{
		Name:         "web",
		Command:      "/bin/sh",
		Args:         []string{"-c", "sleep 30"},
		NumProcesses: 1,
	})
	resp, err := http.Post(base+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var views []jobView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "web", views[0].Name)
}

func TestHTTPAPIRequiresAuthWhenNotNoAuth(t *testing.T) {
	_, addr := newTestServer(t, false)
	resp, err := http.Get("http://" + addr + "/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPAPIAddJobWithGroupQualifiesName(t *testing.T) {
	_, addr := newTestServer(t, true)
	base := "http://" + addr

	body, _ := json.Marshal(addJobRequest{
		Name:         "worker",
		Group:        "batch",
		Command:      "/bin/sh",
		Args:         []string{"-c", "sleep 30"},
		NumProcesses: 1,
	})
	resp, err := http.Post(base+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/jobs/batch.worker")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view jobView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "batch.worker", view.Name)
}

func TestHTTPAPIRemoveUnknownJobIs404(t *testing.T) {
	_, addr := newTestServer(t, true)
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("http://%s/jobs/missing", addr), nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
