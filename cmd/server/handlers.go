package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/acousticprint/internal/audio"
	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/service"
	"github.com/himanishpuri/acousticprint/internal/storage"
	"github.com/himanishpuri/acousticprint/pkg/utils"
)

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "acousticprint API",
		"endpoints": map[string]string{
			"health":       "GET /health",
			"tracks":       "GET /api/tracks",
			"indexFile":    "POST /api/tracks",
			"indexYouTube": "POST /api/tracks/youtube",
			"getTrack":     "GET /api/tracks/{id}",
			"deleteTrack":  "DELETE /api/tracks/{id}",
			"lookup":       "GET /api/hashes/{hash}",
			"settings":     "GET /api/settings",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Health check failed: %v", err)
		s.respondError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		Uptime:       strings.TrimSuffix(humanize.RelTime(s.started, time.Now(), "", ""), " "),
		Tracks:       stats.Tracks,
		Fingerprints: stats.Fingerprints,
		Driver:       s.config.Database.Driver,
	})
}

// handleListTracks handles GET /api/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to count fingerprints: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}
	s.respondJSON(w, http.StatusOK, ListTracksResponse{
		Tracks:       tracks,
		Count:        len(tracks),
		Fingerprints: stats.Fingerprints,
	})
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := s.service.GetTrack(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, fmt.Sprintf("track %s", id), err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

// handleDeleteTrack handles DELETE /api/tracks/{id}
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteTrack(r.Context(), id); err != nil {
		s.respondServiceError(w, fmt.Sprintf("track %s", id), err)
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteTrackResponse{
		Message: "Track deleted successfully",
		ID:      id,
	})
}

// handleIndexUpload handles POST /api/tracks (multipart upload, field "audio")
func (s *Server) handleIndexUpload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	limit := s.config.Server.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.log.Warnf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload (limit %s)", humanize.IBytes(uint64(limit))))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !utils.IsAudioFile(name) {
		s.respondError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("%s is not a supported audio file", name))
		return
	}

	// the upload keeps its original name so the track is cataloged under it
	dir, err := os.MkdirTemp(s.config.Indexer.TempDir, "upload-")
	if err != nil {
		s.log.Errorf("Failed to create temp dir: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := saveUpload(path, file); err != nil {
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}
	s.log.Infof("Indexing upload %s (%s)", name, humanize.IBytes(uint64(header.Size)))

	res, err := s.service.IndexFile(ctx, path)
	s.respondIndexed(w, name, res, err)
}

func saveUpload(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// handleIndexYouTube handles POST /api/tracks/youtube
func (s *Server) handleIndexYouTube(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req IndexYouTubeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !utils.IsYouTubeURL(req.YouTubeURL) {
		s.respondError(w, http.StatusBadRequest, "not a YouTube URL")
		return
	}

	res, err := s.service.IndexYouTube(ctx, req.YouTubeURL)
	s.respondIndexed(w, req.YouTubeURL, res, err)
}

func (s *Server) respondIndexed(w http.ResponseWriter, source string, res *service.IndexResult, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateTrack):
		resp := IndexResponse{Message: "Track already indexed", Duplicate: true}
		if res != nil {
			resp.Track = res.Track
		}
		s.respondJSON(w, http.StatusConflict, resp)
	case err != nil:
		s.respondServiceError(w, source, err)
	default:
		s.respondJSON(w, http.StatusCreated, IndexResponse{
			Message:      "Track indexed successfully",
			Track:        res.Track,
			Fingerprints: res.Fingerprints,
		})
	}
}

// handleLookup handles GET /api/hashes/{hash}; the hash is decimal or 0x-prefixed hex.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("hash")
	hash, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid hash %q", raw))
		return
	}
	couples, err := s.service.Lookup(r.Context(), uint32(hash))
	if err != nil {
		s.respondServiceError(w, "lookup", err)
		return
	}
	k := fingerprint.DecodeHash(uint32(hash))
	s.respondJSON(w, http.StatusOK, LookupResponse{
		Hash:      uint32(hash),
		AnchorBin: k.AnchorBin,
		TargetBin: k.TargetBin,
		Delta:     k.Delta,
		Couples:   couples,
	})
}

// handleSettings handles GET /api/settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Settings(r.Context())
	if err != nil {
		s.respondServiceError(w, "settings", err)
		return
	}
	s.respondJSON(w, http.StatusOK, SettingsResponse{
		Digest:  report.Digest,
		Current: report.Current,
		Stored:  report.Stored,
		Drift:   report.Drift,
	})
}

// respondServiceError maps service and pipeline errors to HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, what string, err error) {
	var decodeErr *audio.DecodeError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("%s not found", what))
	case errors.As(err, &decodeErr),
		errors.Is(err, fingerprint.ErrEmptyAudio),
		errors.Is(err, fingerprint.ErrAudioTooShort),
		errors.Is(err, fingerprint.ErrNoLandmarks):
		s.log.Warnf("%s: %v", what, err)
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.log.Errorf("%s: %v", what, err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("%s failed", what))
	}
}
