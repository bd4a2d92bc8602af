package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/gateway/apierror"
	"github.com/candor-labs/candor/pkg/gateway/mw"
	"github.com/candor-labs/candor/pkg/media"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	coreErr, status := apierror.FromError(err, reqID)
	if logger != nil && status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", reqID,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, apierror.Envelope{Error: coreErr})
}

// decodeJSON strictly decodes the request body into v. Unknown fields and
// trailing content are rejected.
func decodeJSON(r *http.Request, maxBytes int64, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.NewInvalidRequestError("request body too large")
		}
		return core.NewInvalidRequestError("invalid JSON body: " + err.Error())
	}
	if dec.More() {
		return core.NewInvalidRequestError("unexpected trailing content in body")
	}
	_, _ = io.Copy(io.Discard, body)
	return nil
}

// frameSpec is one video frame carried as base64 in a JSON segment.
type frameSpec struct {
	Data      string  `json:"data"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Timestamp float64 `json:"timestamp"`
}

// audioSpec is a PCM waveform carried as base64 in a JSON segment.
type audioSpec struct {
	Data       string `json:"data"`
	SampleRate int    `json:"sample_rate"`
}

func decodeFrames(specs []frameSpec) ([]media.Frame, error) {
	frames := make([]media.Frame, 0, len(specs))
	for _, s := range specs {
		data, err := base64.StdEncoding.DecodeString(s.Data)
		if err != nil {
			return nil, core.NewInvalidRequestErrorWithParam("frame data is not valid base64", "frames")
		}
		if s.Width <= 0 || s.Height <= 0 {
			return nil, core.NewInvalidRequestErrorWithParam("frame dimensions must be positive", "frames")
		}
		frames = append(frames, media.Frame{
			Data:      data,
			Width:     s.Width,
			Height:    s.Height,
			Timestamp: s.Timestamp,
		})
	}
	return frames, nil
}

func decodeAudio(spec *audioSpec) (media.Waveform, error) {
	if spec == nil {
		return media.Waveform{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(spec.Data)
	if err != nil {
		return media.Waveform{}, core.NewInvalidRequestErrorWithParam("audio data is not valid base64", "audio")
	}
	if len(data) > 0 && spec.SampleRate <= 0 {
		return media.Waveform{}, core.NewInvalidRequestErrorWithParam("audio sample_rate must be positive", "audio")
	}
	return media.Waveform{PCM: data, SampleRate: spec.SampleRate}, nil
}
