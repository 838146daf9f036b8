package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rfiorani/echomatch/internal/codec"
	"github.com/rfiorani/echomatch/internal/identify"
	"github.com/rfiorani/echomatch/pkg/logger"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service *identify.Service
	config  *ServerConfig
	log     *logger.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	IndexPath      string
	MetaPath       string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service *identify.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondIdentifyError writes a failed identification. The shape matches
// the success response so clients parse one payload either way.
func (s *Server) respondIdentifyError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, IdentifyResponse{
		Found: false,
		Error: message,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "echomatch API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":   "GET /health",
			"stats":    "GET /api/stats",
			"identify": "POST /identify",
			"getTrack": "GET /api/tracks/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to collect stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	s.respondJSON(w, http.StatusOK, StatsResponse{
		Status:        "healthy",
		IndexPath:     s.config.IndexPath,
		MetaPath:      s.config.MetaPath,
		IndexEntries:  stats.IndexEntries,
		IndexedTracks: stats.IndexedTracks,
		CatalogTracks: stats.CatalogTracks,
		IndexSize:     humanize.Comma(stats.IndexEntries) + " entries",
	})
}

// handleIdentify handles POST /identify
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondIdentifyError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		s.respondIdentifyError(w, http.StatusBadRequest, err.Error())
		return
	}

	codes := req.Codes
	if len(codes) == 0 {
		decoded, err := codec.Decode(req.Fingerprint)
		if err != nil {
			s.log.Warnf("Undecodable fingerprint from client: %v", err)
			s.respondIdentifyError(w, http.StatusBadRequest, "Malformed fingerprint")
			return
		}
		codes = decoded
	}

	if len(codes) >= CodeWarningThreshold {
		s.log.Warnf("Large code batch received: %d codes", len(codes))
	}

	result, err := s.service.Identify(r.Context(), codes)
	if err != nil {
		switch {
		case errors.Is(err, identify.ErrInvalidQuery):
			s.respondIdentifyError(w, http.StatusBadRequest, "Query produced no usable codes")
		case errors.Is(err, identify.ErrStoreUnavailable):
			s.log.Errorf("Stores unavailable: %v", err)
			s.respondIdentifyError(w, http.StatusServiceUnavailable, "Identification service unavailable")
		default:
			s.log.Errorf("Failed to identify: %v", err)
			s.respondIdentifyError(w, http.StatusInternalServerError, "Identification failed")
		}
		return
	}

	if !result.Found {
		s.log.Infof("No match for %d query codes", len(codes))
		s.respondJSON(w, http.StatusOK, IdentifyResponse{Found: false})
		return
	}

	s.log.Infof("Matched track %s (score %d)", result.TrackID, result.Score)
	s.respondJSON(w, http.StatusOK, IdentifyResponse{
		Found:   true,
		TrackID: result.TrackID,
		Score:   result.Score,
		Title:   result.Meta.Title,
		Artist:  result.Meta.Artist,
		Album:   result.Meta.Album,
	})
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request, trackID string) {
	md, err := s.service.ResolveTrack(r.Context(), trackID)
	if err != nil {
		s.log.Errorf("Failed to resolve track %s: %v", trackID, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to resolve track")
		return
	}

	if md.Title == nil && md.Artist == nil && md.Album == nil {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track %s not found", trackID))
		return
	}

	s.respondJSON(w, http.StatusOK, TrackResponse{
		ID:     trackID,
		Title:  md.Title,
		Artist: md.Artist,
		Album:  md.Album,
	})
}

// handleIdentifyRoute routes requests to /identify
func (s *Server) handleIdentifyRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleIdentify(w, r)
}

// handleTrack routes requests to /api/tracks/{id}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	trackID := r.URL.Path[len("/api/tracks/"):]
	if trackID == "" {
		s.respondError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetTrack(w, r, trackID)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
