package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentifyFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/identify" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Codes []uint32 `json:"codes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if len(req.Codes) != 3 {
			t.Errorf("expected 3 codes, got %d", len(req.Codes))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"found":  true,
			"score":  42,
			"title":  "Roygbiv",
			"artist": "Boards of Canada",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Identify(context.Background(), []uint32{1, 2, 3})
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}

	if !result.Found || result.Score != 42 {
		t.Errorf("expected found with score 42, got %+v", result)
	}
	if result.Meta.Title == nil || *result.Meta.Title != "Roygbiv" {
		t.Errorf("expected title 'Roygbiv', got %v", result.Meta.Title)
	}
	if result.Meta.Album != nil {
		t.Errorf("expected nil album, got %q", *result.Meta.Album)
	}
}

func TestIdentifyNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"found": false})
	}))
	defer srv.Close()

	result, err := New(srv.URL).Identify(context.Background(), []uint32{7})
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if result.Found {
		t.Errorf("expected no match, got %+v", result)
	}
}

func TestIdentifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"found": false, "error": "empty code query"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Identify(context.Background(), []uint32{1})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestIdentifyConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := New(srv.URL).Identify(context.Background(), []uint32{1})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestIdentifyMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Identify(context.Background(), []uint32{1})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identify" {
			t.Errorf("expected path /identify, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"found": false})
	}))
	defer srv.Close()

	if _, err := New(srv.URL + "/").Identify(context.Background(), []uint32{1}); err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
}
