// Package web provides the HTTP status server for the repeater.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sweeney/repeater/internal/recordings"
	"github.com/sweeney/repeater/internal/status"
)

const (
	defaultRecordingLimit = 50
	maxRecordingLimit     = 500
)

// RecordingLister lists stored recordings, newest first.
type RecordingLister interface {
	List(limit int) ([]recordings.Recording, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	recordings RecordingLister // nil when recordings are not stored
	log        zerolog.Logger
}

// New creates a Server that reads state from the given tracker. recs may be
// nil.
func New(addr string, tracker *status.Tracker, recs RecordingLister, log zerolog.Logger) *Server {
	s := &Server{tracker: tracker, recordings: recs, log: log}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.SetHTMLTemplate(indexTmpl)

	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/status.json", s.handleStatus)
	router.GET("/index.json", s.handleStatus)
	router.GET("/recordings.json", s.handleRecordings)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	snap := s.tracker.Snapshot()
	var recent []recordings.Recording
	if s.recordings != nil {
		var err error
		recent, err = s.recordings.List(10)
		if err != nil {
			s.log.Warn().Err(err).Msg("list recordings")
		}
	}
	c.HTML(http.StatusOK, "index", pageData(snap, recent))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, status.Build(s.tracker.Snapshot()))
}

func (s *Server) handleRecordings(c *gin.Context) {
	if s.recordings == nil {
		c.JSON(http.StatusOK, gin.H{"recordings": []recordings.Recording{}})
		return
	}

	limit := defaultRecordingLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxRecordingLimit {
		limit = maxRecordingLimit
	}

	recs, err := s.recordings.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []recordings.Recording{}
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}
