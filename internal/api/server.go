package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asanagraph/asanagraph/internal/graph"
)

// PoseChecker answers whether a single pose is safe for a user, offering a
// replacement when it is not. An empty final name means the pose should be
// skipped entirely. A pose absent from the graph yields an error wrapping
// graph.ErrNotFound.
type PoseChecker interface {
	CheckPose(ctx context.Context, poseName, query string) (finalName string, replaced bool, err error)
}

// Server is the HTTP API exposing pose checking.
type Server struct {
	checker   PoseChecker
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(checker PoseChecker, logger *slog.Logger, authToken string) *Server {
	return &Server{
		checker:   checker,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check — no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/check-pose", s.auth(s.handleCheckPose))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkPoseRequest is the body accepted by POST /v1/check-pose.
type checkPoseRequest struct {
	PoseName  string `json:"pose_name"`
	UserQuery string `json:"user_query"`
}

// checkPoseResponse is returned by POST /v1/check-pose. FinalPoseName is
// null when the pose was removed with no replacement.
type checkPoseResponse struct {
	FinalPoseName *string `json:"final_pose_name"`
	WasReplaced   bool    `json:"was_replaced"`
}

func (s *Server) handleCheckPose(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req checkPoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.PoseName == "" {
		s.writeError(w, http.StatusBadRequest, "pose_name is required")
		return
	}
	if req.UserQuery == "" {
		s.writeError(w, http.StatusBadRequest, "user_query is required")
		return
	}

	final, replaced, err := s.checker.CheckPose(r.Context(), req.PoseName, req.UserQuery)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown pose")
			return
		}
		s.logger.Error("failed to check pose", "pose", req.PoseName, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to check pose")
		return
	}

	resp := checkPoseResponse{WasReplaced: replaced}
	if final != "" {
		resp.FinalPoseName = &final
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
