package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/job"
)

type jobView struct {
	Name         string `json:"name"`
	NumProcesses int    `json:"numprocesses"`
	Live         int    `json:"live"`
	Flapping     bool   `json:"flapping"`
	Stopped      bool   `json:"stopped"`
}

func newJobView(name string, j *job.Job) jobView {
	return jobView{
		Name:         name,
		NumProcesses: j.NumProcesses(),
		Live:         j.LiveCount(),
		Flapping:     j.IsFlapping(),
		Stopped:      j.Stopped(),
	}
}

// listJobsHandler handles GET /jobs.
func (s *Server) listJobsHandler(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())
	names := s.manager.ListJobs()
	views := make([]jobView, 0, len(names))
	for _, name := range names {
		if ok, _ := key.Can("read", name); !ok {
			continue
		}
		j, err := s.manager.GetJob(name)
		if err != nil {
			continue
		}
		views = append(views, newJobView(name, j))
	}
	writeJSON(w, http.StatusOK, views)
}

// getJobHandler handles GET /jobs/{name}.
func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request, name string) {
	key := keyFromContext(r.Context())
	if !requirePermission(w, key, "read", name) {
		return
	}
	j, err := s.manager.GetJob(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(name, j))
}

type addJobRequest struct {
	Name         string            `json:"name"`
	Group        string            `json:"group"`
	Command      string            `json:"command"`
	Args         []string          `json:"args"`
	Env          map[string]string `json:"env"`
	Dir          string            `json:"dir"`
	NumProcesses int               `json:"numprocesses"`
}

// addJobHandler handles POST /jobs.
func (s *Server) addJobHandler(w http.ResponseWriter, r *http.Request) {
	var req addJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	fullName := job.FullName(req.Group, req.Name)

	key := keyFromContext(r.Context())
	if !requirePermission(w, key, "manage", fullName) {
		return
	}

	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}

	cfg := job.Config{
		Name:         fullName,
		NumProcesses: req.NumProcesses,
		Template: job.CommandTemplate{
			Command: req.Command,
			Args:    req.Args,
			Env:     env,
			Dir:     req.Dir,
		},
	}

	if err := s.manager.AddJob(cfg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// removeJobHandler handles DELETE /jobs/{name}.
func (s *Server) removeJobHandler(w http.ResponseWriter, r *http.Request, name string) {
	key := keyFromContext(r.Context())
	if !requirePermission(w, key, "manage", name) {
		return
	}
	if err := s.manager.RemoveJob(name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startJobHandler handles POST /jobs/{name}/start.
func (s *Server) startJobHandler(w http.ResponseWriter, r *http.Request, name string) {
	key := keyFromContext(r.Context())
	if !requirePermission(w, key, "write", name) {
		return
	}
	if err := s.manager.StartJob(name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// stopJobHandler handles POST /jobs/{name}/stop.
func (s *Server) stopJobHandler(w http.ResponseWriter, r *http.Request, name string) {
	key := keyFromContext(r.Context())
	if !requirePermission(w, key, "write", name) {
		return
	}
	if err := s.manager.StopJob(name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type updateNumProcessesRequest struct {
	NumProcesses int `json:"numprocesses"`
}

// updateJobHandler handles POST /jobs/{name}/numprocesses.
func (s *Server) updateJobHandler(w http.ResponseWriter, r *http.Request, name string) {
	var req updateNumProcessesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	key := keyFromContext(r.Context())
	if !requirePermission(w, key, "write", name) {
		return
	}
	if err := s.manager.UpdateNumProcesses(name, req.NumProcesses); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// listKeysHandler handles GET /keys. Superuser only, except that the
// no-auth DummyKey is also let through.
func (s *Server) listKeysHandler(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())
	if !key.IsSuperuser() && !key.IsDummy() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	keys, err := s.keys.AllKeys()
	if err != nil {
		writeError(w, err)
		return
	}
	dumps := make([]any, 0, len(keys))
	for _, k := range keys {
		dumps = append(dumps, k.Dump())
	}
	writeJSON(w, http.StatusOK, dumps)
}

// eventsHandler provides the SSE event stream for GET /events.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	client := newSSEClient(generateClientID())
	s.hub.register <- client
	defer func() { s.hub.unregister <- client }()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.eventType, msg.data)
			flusher.Flush()
		}
	}
}

func generateClientID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// publishToHub forwards every bus event to connected SSE clients as JSON.
func publishToHub(hub *Hub) events.Handler {
	return func(e events.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		hub.Broadcast(string(e.Type), data)
	}
}
