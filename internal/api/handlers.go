package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mattjoyce/foldermon/internal/bridge"
	"github.com/mattjoyce/foldermon/internal/protocol"
	"github.com/mattjoyce/foldermon/internal/router"
	"github.com/mattjoyce/foldermon/internal/worker"
)

const maxBodyBytes = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h := s.bridge.Health()
	status := "ok"
	if !h.Attached {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Worker:        h,
	})
}

// handleScan handles POST /scan.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	payload, err := s.bridge.Scan(r.Context())
	if err != nil {
		s.writeBridgeError(w, "scan", err)
		return
	}
	items := bridge.ParseScanItems(payload)
	if items == nil {
		items = []string{}
	}
	respondJSON(w, http.StatusOK, ScanResponse{Payload: payload, Items: items})
}

// handleListFolders handles GET /folders, refreshing from the worker.
func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.bridge.List(r.Context())
	if err != nil {
		s.writeBridgeError(w, "list", err)
		return
	}
	respondJSON(w, http.StatusOK, FoldersResponse{Folders: nonNil(folders)})
}

// handleCachedFolders handles GET /folders/cached without a worker round trip.
func (s *Server) handleCachedFolders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, FoldersResponse{Folders: nonNil(s.bridge.Folders())})
}

// handleAddFolder handles POST /folders.
func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFolderRequest(w, r)
	if !ok {
		return
	}
	if err := s.bridge.AddFolderPath(r.Context(), req.Path); err != nil {
		s.writeBridgeError(w, "add folder", err)
		return
	}
	respondJSON(w, http.StatusCreated, FolderChangeResponse{
		Path:    req.Path,
		Status:  "added",
		Acked:   s.bridge.Health().Acks,
		Folders: nonNil(s.bridge.Folders()),
	})
}

// handleRemoveFolder handles DELETE /folders?path=...
func (s *Server) handleRemoveFolder(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	if err := s.bridge.RemoveFolder(r.Context(), path); err != nil {
		s.writeBridgeError(w, "remove folder", err)
		return
	}
	respondJSON(w, http.StatusOK, FolderChangeResponse{
		Path:    path,
		Status:  "removed",
		Acked:   s.bridge.Health().Acks,
		Folders: nonNil(s.bridge.Folders()),
	})
}

// handleReveal handles POST /reveal.
func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeFolderRequest(w, r)
	if !ok {
		return
	}
	if err := s.bridge.OpenInFileManager(r.Context(), req.Path); err != nil {
		s.writeBridgeError(w, "reveal", err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "opened"})
}

// handleRestart handles POST /worker/restart.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Restart(r.Context()); err != nil {
		s.writeBridgeError(w, "restart", err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.bridge.Health())
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func (s *Server) decodeFolderRequest(w http.ResponseWriter, r *http.Request) (FolderRequest, bool) {
	var req FolderRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return req, false
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return req, false
	}
	return req, true
}

// statusForError maps bridge failures onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, bridge.ErrInvalidPath), errors.Is(err, protocol.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrRejected):
		return http.StatusConflict
	case errors.Is(err, router.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, router.ErrWorkerUnavailable), errors.Is(err, worker.ErrSpawn), errors.Is(err, bridge.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrMalformedFrame):
		return http.StatusBadGateway
	case errors.Is(err, bridge.ErrNoPicker):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeBridgeError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("bridge operation failed", "op", op, "status", status, "error", err)
	}
	s.writeError(w, status, err.Error())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
