// Package remote provides HTTP adapters for the media collaborator
// interfaces, for deployments where landmark location, feature extraction,
// and transcription run as separate services. Transient failures (network
// errors, 5xx) are retried with fibonacci backoff; retries live here at the
// boundary rather than inside the core.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/media"
)

// Options configures the remote adapters.
type Options struct {
	// HTTPClient is the client used for all requests. Defaults to a client
	// with a 60s timeout.
	HTTPClient *http.Client
	// MaxRetries is the retry budget per request. Defaults to 3.
	MaxRetries uint64
	// BackoffBase is the first backoff interval. Defaults to 100ms.
	BackoffBase time.Duration
	// Logger receives retry warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// LocatorClient implements media.LandmarkLocator against a remote landmark
// service.
type LocatorClient struct {
	baseURL string
	opts    Options
}

// NewLocator creates a LocatorClient for the service at baseURL.
func NewLocator(baseURL string, opts Options) *LocatorClient {
	return &LocatorClient{baseURL: baseURL, opts: opts.withDefaults()}
}

type locateResponse struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Locate posts a frame to the landmark service and returns the gaze center,
// if a face was detected.
func (c *LocatorClient) Locate(ctx context.Context, frame media.Frame) (types.Point, bool, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		return types.Point{}, false, err
	}
	if _, err := fw.Write(frame.Data); err != nil {
		return types.Point{}, false, err
	}
	if err := w.WriteField("width", strconv.Itoa(frame.Width)); err != nil {
		return types.Point{}, false, err
	}
	if err := w.WriteField("height", strconv.Itoa(frame.Height)); err != nil {
		return types.Point{}, false, err
	}
	if err := w.Close(); err != nil {
		return types.Point{}, false, err
	}

	var out locateResponse
	if err := postWithRetry(ctx, c.opts, "landmark", c.baseURL+"/locate", w.FormDataContentType(), b.Bytes(), &out); err != nil {
		return types.Point{}, false, err
	}
	if !out.Found {
		return types.Point{}, false, nil
	}
	return types.Point{X: out.X, Y: out.Y}, true, nil
}

// ExtractorClient implements media.FeatureExtractor against a remote audio
// feature service.
type ExtractorClient struct {
	baseURL string
	opts    Options
}

// NewExtractor creates an ExtractorClient for the service at baseURL.
func NewExtractor(baseURL string, opts Options) *ExtractorClient {
	return &ExtractorClient{baseURL: baseURL, opts: opts.withDefaults()}
}

// Extract posts an audio clip and returns its tone features.
func (c *ExtractorClient) Extract(ctx context.Context, audio media.Waveform) (*types.ToneFeatures, error) {
	body, contentType, err := audioForm(audio)
	if err != nil {
		return nil, err
	}
	var out types.ToneFeatures
	if err := postWithRetry(ctx, c.opts, "feature extractor", c.baseURL+"/extract", contentType, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TranscriberClient implements media.Transcriber against a remote
// transcription service.
type TranscriberClient struct {
	baseURL string
	opts    Options
}

// NewTranscriber creates a TranscriberClient for the service at baseURL.
func NewTranscriber(baseURL string, opts Options) *TranscriberClient {
	return &TranscriberClient{baseURL: baseURL, opts: opts.withDefaults()}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe posts an audio clip and returns its transcript. An empty
// transcript is a valid response, not an error.
func (c *TranscriberClient) Transcribe(ctx context.Context, audio media.Waveform) (string, error) {
	body, contentType, err := audioForm(audio)
	if err != nil {
		return "", err
	}
	var out transcribeResponse
	if err := postWithRetry(ctx, c.opts, "transcriber", c.baseURL+"/transcribe", contentType, body, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func audioForm(audio media.Waveform) (body []byte, contentType string, err error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("audio", "audio.pcm")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio.PCM); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("sample_rate", strconv.Itoa(audio.SampleRate)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

func postWithRetry(ctx context.Context, opts Options, service, url, contentType string, body []byte, out any) error {
	backoff := retry.WithMaxRetries(opts.MaxRetries, retry.NewFibonacci(opts.BackoffBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := opts.HTTPClient.Do(req)
		if err != nil {
			opts.Logger.Warn("collaborator request failed, retrying", "service", service, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := fmt.Errorf("%s %s: %s", service, resp.Status, string(payload))
			opts.Logger.Warn("collaborator returned server error, retrying", "service", service, "status", resp.StatusCode)
			return retry.RetryableError(err)
		}
		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("%s %s: %s", service, resp.Status, string(payload))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s decode: %w", service, err)
		}
		return nil
	})
}
