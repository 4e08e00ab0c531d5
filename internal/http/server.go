package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lsmversion/pkg/dberrors"
	"lsmversion/pkg/localversion"
	"lsmversion/pkg/sharedbuffer"
	"lsmversion/pkg/types"
	"lsmversion/pkg/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

type iLocalVersion interface {
	Stats() localversion.Stats
	ClonePinnedVersion() *localversion.PinnedVersion
	SetPinnedVersion(v version.HummockVersion)
	WithReadVersion(readEpoch types.Epoch, fn func(*localversion.ReadVersion) error) error
	WriteBatch(epoch types.Epoch, items []sharedbuffer.Item) (types.OrderIndex, error)
}

// iPinner registers a version with the version authority before the node
// starts serving reads from it.
type iPinner interface {
	Pin(ctx context.Context, id types.VersionID) error
}

// Server exposes the local version state for operators and tests.
type Server struct {
	lv       iLocalVersion
	pinner   iPinner
	gatherer prometheus.Gatherer

	httpServer        *http.Server
	readHeaderTimeout time.Duration
	URL               string
	addr              string
}

func NewServer(lv iLocalVersion, pinner iPinner, gatherer prometheus.Gatherer, port string) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	return &Server{
		lv:                lv,
		pinner:            pinner,
		gatherer:          gatherer,
		readHeaderTimeout: time.Second,
		URL:               "http://localhost:" + port,
		addr:              ":" + port,
	}
}

func (s *Server) SetReadHeaderTimeout(d time.Duration) {
	if d > 0 {
		s.readHeaderTimeout = d
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	// SetPinnedVersion panics on a racing backward update
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleGetVersion)
	r.Put("/version", s.handlePutVersion)
	r.Get("/buffers", s.handleBuffers)
	r.Get("/read", s.handleRead)
	r.Put("/write", s.handleWrite)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleGetVersion(w http.ResponseWriter, _ *http.Request) {
	pinned := s.lv.ClonePinnedVersion()
	defer pinned.Release()

	s.writeJSON(w, http.StatusOK, NewDataResponse(pinned.Version()))
}

func (s *Server) handlePutVersion(w http.ResponseWriter, r *http.Request) {
	var v version.HummockVersion
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	current := s.lv.ClonePinnedVersion()
	pinnedID, committed := current.ID(), current.MaxCommittedEpoch()
	current.Release()
	if v.ID == pinnedID && v.MaxCommittedEpoch != committed {
		s.writeJSON(w, http.StatusConflict, NewErrorResponse(
			fmt.Sprintf("version %d is pinned with max committed epoch %d, got %d", v.ID, committed, v.MaxCommittedEpoch)))
		return
	}
	if v.MaxCommittedEpoch < committed {
		s.writeJSON(w, http.StatusConflict, NewErrorResponse(
			fmt.Sprintf("max committed epoch %d is behind pinned %d", v.MaxCommittedEpoch, committed)))
		return
	}

	if s.pinner != nil {
		if err := s.pinner.Pin(r.Context(), v.ID); err != nil {
			s.writeJSON(w, http.StatusBadGateway, NewErrorResponse(err.Error()))
			return
		}
	}
	s.lv.SetPinnedVersion(v)

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleBuffers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, NewDataResponse(s.lv.Stats()))
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	epoch, ok := s.parseEpoch(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	var (
		item  sharedbuffer.Item
		found bool
	)
	_ = s.lv.WithReadVersion(epoch, func(rv *localversion.ReadVersion) error {
		item, found = rv.Get([]byte(key))
		return nil
	})

	if !found || item.Tombstone {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found in shared buffers"))
		return
	}

	s.writeJSON(w, http.StatusOK, NewValueResponse(string(item.Value), uint64(item.Epoch)))
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	epoch, ok := s.parseEpoch(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	item := sharedbuffer.Item{Key: []byte(key)}
	if q.Has("value") {
		item.Value = []byte(q.Get("value"))
	} else {
		item.Tombstone = true
	}

	if _, err := s.lv.WriteBatch(epoch, []sharedbuffer.Item{item}); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dberrors.ErrEpochCommitted) || errors.Is(err, dberrors.ErrBufferSealed) {
			status = http.StatusConflict
		}
		s.writeJSON(w, status, NewErrorResponse(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) parseEpoch(w http.ResponseWriter, r *http.Request) (types.Epoch, bool) {
	raw := r.URL.Query().Get("epoch")
	epoch, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(fmt.Sprintf("Invalid epoch %q", raw)))
		return 0, false
	}
	return types.Epoch(epoch), true
}
