package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanagraph/asanagraph/internal/graph"
)

// stubChecker returns fixed answers.
type stubChecker struct {
	final    string
	replaced bool
	err      error
}

func (s *stubChecker) CheckPose(context.Context, string, string) (string, bool, error) {
	return s.final, s.replaced, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postCheckPose(t *testing.T, srv *Server, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/check-pose", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := NewServer(&stubChecker{}, testLogger(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	// No auth required on the health endpoint.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestCheckPoseKept(t *testing.T) {
	srv := NewServer(&stubChecker{final: "Crow Pose"}, testLogger(), "")

	w := postCheckPose(t, srv, "", `{"pose_name":"Crow Pose","user_query":"quick flow"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		FinalPoseName *string `json:"final_pose_name"`
		WasReplaced   bool    `json:"was_replaced"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.FinalPoseName)
	assert.Equal(t, "Crow Pose", *resp.FinalPoseName)
	assert.False(t, resp.WasReplaced)
}

func TestCheckPoseReplaced(t *testing.T) {
	srv := NewServer(&stubChecker{final: "Side Plank", replaced: true}, testLogger(), "")

	w := postCheckPose(t, srv, "", `{"pose_name":"Crow Pose","user_query":"wrist injury"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		FinalPoseName *string `json:"final_pose_name"`
		WasReplaced   bool    `json:"was_replaced"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.FinalPoseName)
	assert.Equal(t, "Side Plank", *resp.FinalPoseName)
	assert.True(t, resp.WasReplaced)
}

func TestCheckPoseRemoved(t *testing.T) {
	srv := NewServer(&stubChecker{final: ""}, testLogger(), "")

	w := postCheckPose(t, srv, "", `{"pose_name":"Crow Pose","user_query":"wrist injury"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// A removed pose serializes as an explicit null.
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	v, ok := resp["final_pose_name"]
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestCheckPoseValidation(t *testing.T) {
	srv := NewServer(&stubChecker{}, testLogger(), "")

	assert.Equal(t, http.StatusBadRequest, postCheckPose(t, srv, "", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, postCheckPose(t, srv, "", `{"user_query":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postCheckPose(t, srv, "", `{"pose_name":"x"}`).Code)
}

func TestCheckPoseUnknownPose(t *testing.T) {
	err := fmt.Errorf("fetching pose %q: %w", "Ghost Pose", graph.ErrNotFound)
	srv := NewServer(&stubChecker{err: err}, testLogger(), "")

	w := postCheckPose(t, srv, "", `{"pose_name":"Ghost Pose","user_query":"quick flow"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown pose")
}

func TestCheckPoseInternalError(t *testing.T) {
	srv := NewServer(&stubChecker{err: errors.New("graph down")}, testLogger(), "")

	w := postCheckPose(t, srv, "", `{"pose_name":"x","user_query":"y"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuth(t *testing.T) {
	srv := NewServer(&stubChecker{final: "Crow Pose"}, testLogger(), "secret")

	body := `{"pose_name":"Crow Pose","user_query":"quick flow"}`
	assert.Equal(t, http.StatusUnauthorized, postCheckPose(t, srv, "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, postCheckPose(t, srv, "wrong", body).Code)
	assert.Equal(t, http.StatusOK, postCheckPose(t, srv, "secret", body).Code)
}
