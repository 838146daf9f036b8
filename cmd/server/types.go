package main

import (
	"fmt"
)

// Code limit constants for query validation
const (
	// MaxCodesHardLimit is the absolute maximum codes accepted per query
	// (several minutes of audio)
	MaxCodesHardLimit = 50000

	// CodeWarningThreshold triggers logging for large code batches
	CodeWarningThreshold = 5000
)

// IdentifyRequest is the request body for POST /identify. Clients send
// either pre-decoded codes or the raw wire fingerprint; codes win when
// both are present.
type IdentifyRequest struct {
	Codes       []uint32 `json:"codes,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// Validate checks if the request is valid
func (r *IdentifyRequest) Validate() error {
	if len(r.Codes) == 0 && r.Fingerprint == "" {
		return fmt.Errorf("codes or fingerprint is required")
	}
	if len(r.Codes) > MaxCodesHardLimit {
		return fmt.Errorf("too many codes: %d (maximum: %d)", len(r.Codes), MaxCodesHardLimit)
	}
	return nil
}

// IdentifyResponse is the response for POST /identify. On failure Found is
// false and Error carries the reason; unresolved metadata fields are
// omitted, not serialized as null.
type IdentifyResponse struct {
	Found   bool    `json:"found"`
	TrackID string  `json:"track_id,omitempty"`
	Score   int     `json:"score,omitempty"`
	Title   *string `json:"title,omitempty"`
	Artist  *string `json:"artist,omitempty"`
	Album   *string `json:"album,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// TrackResponse is the response for GET /api/tracks/{id}
type TrackResponse struct {
	ID     string  `json:"id"`
	Title  *string `json:"title,omitempty"`
	Artist *string `json:"artist,omitempty"`
	Album  *string `json:"album,omitempty"`
}

// StatsResponse provides server health and database metrics
type StatsResponse struct {
	Status        string `json:"status"`
	IndexPath     string `json:"index_path"`
	MetaPath      string `json:"meta_path"`
	IndexEntries  int64  `json:"index_entries"`
	IndexedTracks int64  `json:"indexed_tracks"`
	CatalogTracks int64  `json:"catalog_tracks"`
	IndexSize     string `json:"index_size"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
