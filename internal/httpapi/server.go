// Package httpapi implements gafferd's HTTP control plane: one listener per
// configured endpoint, a job/key REST surface, and a Server-Sent Events
// stream mirroring the daemon's event bus.
package httpapi

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/iniconfig"
	"github.com/RevCBH/gafferd/internal/keymanager"
	"github.com/RevCBH/gafferd/internal/manager"
)

// Config configures the control plane.
type Config struct {
	Endpoints []iniconfig.EndpointSpec
	NoAuth    bool
}

// Server coordinates one or more HTTP listeners (one per configured
// endpoint), the shared SSE hub, and the job/key REST handlers.
type Server struct {
	manager *manager.Manager
	keys    *keymanager.Manager
	hub     *Hub

	endpoints []*endpointServer
	noAuth    bool

	subscription events.Subscription
}

type endpointServer struct {
	spec     iniconfig.EndpointSpec
	listener net.Listener
	http     *http.Server
}

// New builds a Server over mgr/keys, one listener per cfg.Endpoints entry.
// Start actually binds the listeners.
func New(cfg Config, mgr *manager.Manager, keys *keymanager.Manager, bus *events.Bus) *Server {
	s := &Server{
		manager: mgr,
		keys:    keys,
		hub:     NewHub(),
		noAuth:  cfg.NoAuth,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := authMiddleware(keys, cfg.NoAuth, mux)

	for _, ep := range cfg.Endpoints {
		s.endpoints = append(s.endpoints, &endpointServer{
			spec: ep,
			http: &http.Server{Handler: handler},
		})
	}

	if bus != nil {
		s.subscription = bus.Subscribe(publishToHub(s.hub))
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.listJobsHandler(w, r)
		case http.MethodPost:
			s.addJobHandler(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
		parts := strings.SplitN(rest, "/", 2)
		name := parts[0]
		if name == "" {
			http.NotFound(w, r)
			return
		}

		if len(parts) == 1 {
			switch r.Method {
			case http.MethodGet:
				s.getJobHandler(w, r, name)
			case http.MethodDelete:
				s.removeJobHandler(w, r, name)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		switch parts[1] {
		case "start":
			s.startJobHandler(w, r, name)
		case "stop":
			s.stopJobHandler(w, r, name)
		case "numprocesses":
			s.updateJobHandler(w, r, name)
		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("/keys", s.listKeysHandler)
	mux.HandleFunc("/events", s.eventsHandler)
}

// Start binds and serves every configured endpoint, plus the SSE hub's
// event loop. Non-blocking - servers run in goroutines.
func (s *Server) Start() error {
	go s.hub.Run()

	for _, ep := range s.endpoints {
		network, address, err := parseBind(ep.spec.Bind)
		if err != nil {
			return fmt.Errorf("httpapi: endpoint %s: %w", ep.spec.Name, err)
		}

		listener, err := net.Listen(network, address)
		if err != nil {
			return fmt.Errorf("httpapi: listen %s: %w", ep.spec.Name, err)
		}

		if ep.spec.TLSEnabled() {
			cert, err := tls.LoadX509KeyPair(ep.spec.CertFile, ep.spec.KeyFile)
			if err != nil {
				listener.Close()
				return fmt.Errorf("httpapi: endpoint %s TLS: %w", ep.spec.Name, err)
			}
			listener = tls.NewListener(listener, &tls.Config{Certificates: []tls.Certificate{cert}})
		}

		ep.listener = listener
		go func(ep *endpointServer) {
			_ = ep.http.Serve(ep.listener)
		}(ep)
	}

	return nil
}

// parseBind splits a "tcp:host:port" or "unix:/path" bind URI (as written
// in the [endpoint:*] config section) into a net.Listen network and
// address.
func parseBind(bind string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(bind, "unix:"):
		return "unix", strings.TrimPrefix(bind, "unix:"), nil
	case strings.HasPrefix(bind, "tcp://"):
		return "tcp", strings.TrimPrefix(bind, "tcp://"), nil
	case strings.HasPrefix(bind, "tcp:"):
		return "tcp", strings.TrimPrefix(bind, "tcp:"), nil
	default:
		return "", "", fmt.Errorf("unrecognized bind uri %q", bind)
	}
}

// Stop gracefully shuts down every endpoint and the SSE hub.
func (s *Server) Stop(ctx context.Context) error {
	s.subscription.Unsubscribe()
	s.hub.Stop()

	for _, ep := range s.endpoints {
		if ep.http != nil {
			if err := ep.http.Shutdown(ctx); err != nil {
				return fmt.Errorf("httpapi: shutdown %s: %w", ep.spec.Name, err)
			}
		}
	}
	return nil
}

// Addrs returns the bound address of every endpoint, keyed by name.
func (s *Server) Addrs() map[string]string {
	out := make(map[string]string, len(s.endpoints))
	for _, ep := range s.endpoints {
		if ep.listener != nil {
			out[ep.spec.Name] = ep.listener.Addr().String()
		}
	}
	return out
}
