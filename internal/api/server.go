// Package api is the writer service: the single HTTP front door through
// which every mutation of the store flows. Reads are served from the
// store's read-only pool; writes serialize behind the writer mutex.
package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/claude-slack/claude-slack/internal/config"
	"github.com/claude-slack/claude-slack/internal/identity"
	"github.com/claude-slack/claude-slack/internal/membership"
	"github.com/claude-slack/claude-slack/internal/messaging"
	"github.com/claude-slack/claude-slack/internal/store"
)

// Server is the writer service.
type Server struct {
	addr       string
	store      *store.Store
	cfg        *config.Config
	identity   *identity.Service
	membership *membership.Service
	messaging  *messaging.Service
	httpServer *http.Server
	cron       *cron.Cron
}

// NewServer wires the services over one store.
func NewServer(addr string, st *store.Store, cfg *config.Config) *Server {
	s := &Server{
		addr:       addr,
		store:      st,
		cfg:        cfg,
		identity:   identity.NewService(st),
		membership: membership.NewService(st),
		messaging:  messaging.NewService(st, cfg.Settings.MaxMessageLength, nil),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/messages", s.handlePostMessage)
	mux.HandleFunc("GET /api/messages", s.handleGetMessages)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/channels", s.handleListChannels)
	mux.HandleFunc("POST /api/channels", s.handleCreateChannel)
	mux.HandleFunc("POST /api/channels/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /api/channels/{id}/leave", s.handleLeave)
	mux.HandleFunc("POST /api/channels/{id}/invite", s.handleInvite)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleRegisterAgent)
	mux.HandleFunc("POST /api/notes", s.handleWriteNote)
	mux.HandleFunc("GET /api/notes", s.handleSearchNotes)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully. The
// retention job runs nightly while the server is up.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	log.Printf("serve: listening on %s", ln.Addr())

	s.cron = cron.New()
	_, err = s.cron.AddFunc("@daily", func() {
		deleted, err := s.messaging.Retention(context.Background(), s.cfg.Settings.MessageRetentionDays)
		if err != nil {
			log.Printf("serve: retention failed: %v", err)
			return
		}
		if deleted > 0 {
			log.Printf("serve: retention deleted %d messages", deleted)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("serve: shutting down")
		<-s.cron.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
