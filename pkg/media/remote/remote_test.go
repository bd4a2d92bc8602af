package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/candor-labs/candor/pkg/media"
)

func fastOptions() Options {
	return Options{
		HTTPClient:  &http.Client{Timeout: 5 * time.Second},
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	}
}

func TestLocator_FoundPoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/locate" {
			t.Errorf("path=%s, want /locate", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("width"); got != "640" {
			t.Errorf("width=%s, want 640", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"found": true, "x": 120.5, "y": 88.0})
	}))
	defer srv.Close()

	c := NewLocator(srv.URL, fastOptions())
	p, found, err := c.Locate(context.Background(), media.Frame{Data: []byte{1, 2}, Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if !found || p.X != 120.5 || p.Y != 88.0 {
		t.Fatalf("point=%+v found=%v", p, found)
	}
}

func TestLocator_NoFaceDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"found": false})
	}))
	defer srv.Close()

	c := NewLocator(srv.URL, fastOptions())
	_, found, err := c.Locate(context.Background(), media.Frame{})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if found {
		t.Fatal("found=true, want false")
	}
}

func TestTranscriber_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello there"})
	}))
	defer srv.Close()

	c := NewTranscriber(srv.URL, fastOptions())
	text, err := c.Transcribe(context.Background(), media.Waveform{PCM: []byte{0, 1}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("text=%q", text)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d, want 3", calls.Load())
	}
}

func TestTranscriber_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewTranscriber(srv.URL, fastOptions())
	_, err := c.Transcribe(context.Background(), media.Waveform{})
	if err == nil {
		t.Fatal("want error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestExtractor_DecodesFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pitch_mean":             192.4,
			"pitch_std":              23.1,
			"spectral_centroid_mean": 1800.0,
		})
	}))
	defer srv.Close()

	c := NewExtractor(srv.URL, fastOptions())
	feats, err := c.Extract(context.Background(), media.Waveform{PCM: []byte{0}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if feats.PitchMean != 192.4 || feats.PitchStd != 23.1 {
		t.Fatalf("features=%+v", feats)
	}
}
