// Package monitor serves a read-only view of a running session to the
// experimenter: JSON status endpoints plus a WebSocket feed of phase,
// trial and session events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	"github.com/renee-tung/WMInstructionTask/pkg/runner"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// PhaseEvent is published on ChannelPhases.
type PhaseEvent struct {
	Trial int           `json:"trial"`
	Phase runner.Phase  `json:"phase"`
	Onset time.Duration `json:"onset"`
}

// TrialEvent is published on ChannelTrials and returned by /api/trials.
type TrialEvent struct {
	Spec    *task.TrialSpec      `json:"spec"`
	Result  *session.TrialResult `json:"result"`
	Correct *bool                `json:"correct"`
	Status  session.Progress     `json:"progress"`
}

// SessionEvent is published on ChannelSession.
type SessionEvent struct {
	Event  string           `json:"event"`
	Detail string           `json:"detail,omitempty"`
	Status session.Progress `json:"progress"`
}

// Status is the body of /api/status.
type Status struct {
	ID          string           `json:"id"`
	Participant string           `json:"participant"`
	Name        string           `json:"name"`
	Variant     string           `json:"variant"`
	StartedAt   time.Time        `json:"started_at"`
	Progress    session.Progress `json:"progress"`
	Warnings    []string         `json:"warnings,omitempty"`
	Clients     int              `json:"clients"`
}

// Server is the monitor. It implements runner.Observer; observer calls
// come from the frame loop and only enqueue messages.
type Server struct {
	cfg    config.MonitorConfig
	sess   *session.Session
	reg    *device.Registry
	hub    *Hub
	engine *gin.Engine

	mu      sync.Mutex
	http    *http.Server
	running bool
}

var _ runner.Observer = (*Server)(nil)

// New builds a monitor over sess. reg may be nil.
func New(cfg config.MonitorConfig, sess *session.Session, reg *device.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:  cfg,
		sess: sess,
		reg:  reg,
		hub:  NewHub(),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/devices", s.handleDevices)
		api.GET("/trials", s.handleTrials)
		api.GET("/trials/:index", s.handleTrial)
	}
	r.GET("/ws", func(c *gin.Context) {
		s.hub.serveWS(c.Writer, c.Request)
	})
	return r
}

// requestLogger logs non-WebSocket requests in the package's log format.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			return
		}
		log.Printf("[monitor] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// Handler exposes the routes, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on the configured address and serves in the background.
// A bind failure is returned immediately.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("monitor is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("monitor failed to start: %w", err)
	}

	go s.hub.Run()
	s.http = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.running = true

	go func() {
		log.Printf("[monitor] serving on http://%s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[monitor] server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.hub.Stop()
	log.Printf("[monitor] shutting down")
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Observer
// -----------------------------------------------------------------------------

// PhaseStarted publishes the phase onset.
func (s *Server) PhaseStarted(trial int, phase runner.Phase, onset time.Duration) {
	s.publish(ChannelPhases, EventTypePhase, PhaseEvent{Trial: trial, Phase: phase, Onset: onset})
}

// TrialFinished publishes the completed trial with the updated progress.
func (s *Server) TrialFinished(spec *task.TrialSpec, r *session.TrialResult) {
	s.publish(ChannelTrials, EventTypeTrial, s.trialEvent(spec, r))
}

// SessionEvent publishes a session-level event such as a pause.
func (s *Server) SessionEvent(event, detail string) {
	s.publish(ChannelSession, EventTypeSession, SessionEvent{
		Event:  event,
		Detail: detail,
		Status: s.sess.Progress(),
	})
}

func (s *Server) publish(channel, typ string, data interface{}) {
	if err := s.hub.Publish(channel, newMessage(typ, data)); err != nil {
		log.Printf("[monitor] publish %s: %v", typ, err)
	}
}

func (s *Server) trialEvent(spec *task.TrialSpec, r *session.TrialResult) TrialEvent {
	ev := TrialEvent{Spec: spec, Result: r, Status: s.sess.Progress()}
	if ok, defined := session.Correct(spec, r); defined {
		ev.Correct = &ok
	}
	return ev
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, Status{
		ID:          s.sess.ID,
		Participant: s.sess.Participant,
		Name:        s.sess.Name,
		Variant:     s.sess.Variant,
		StartedAt:   s.sess.StartedAt,
		Progress:    s.sess.Progress(),
		Warnings:    s.sess.Plan.Warnings,
		Clients:     s.hub.ClientCount(),
	})
}

func (s *Server) handleDevices(c *gin.Context) {
	if s.reg == nil {
		c.JSON(http.StatusOK, gin.H{"devices": []device.Status{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": s.reg.Snapshot()})
}

// handleTrials lists completed trials; ?since=N skips the first N.
func (s *Server) handleTrials(c *gin.Context) {
	since := 0
	if v := c.Query("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}

	done := s.sess.CompletedTrials()
	trials := make([]TrialEvent, 0)
	for i := since; i < done; i++ {
		r, ok := s.sess.Result(i)
		if !ok {
			break
		}
		trials = append(trials, s.trialEvent(&s.sess.Plan.Trials[i], r))
	}
	c.JSON(http.StatusOK, gin.H{
		"trials": trials,
		"next":   since + len(trials),
	})
}

func (s *Server) handleTrial(c *gin.Context) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}
	if i < 0 || i >= s.sess.Plan.Len() {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no trial %d in a plan of %d", i, s.sess.Plan.Len())})
		return
	}
	spec := &s.sess.Plan.Trials[i]
	r, ok := s.sess.Result(i)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"spec": spec, "result": nil})
		return
	}
	c.JSON(http.StatusOK, s.trialEvent(spec, r))
}
