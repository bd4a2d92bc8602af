// Package media defines the contracts for the external signal-extraction
// collaborators: landmark location, audio feature extraction, and speech
// transcription. The fusion engine never touches raw media; these interfaces
// are the boundary where video and audio become feature sequences.
package media

import (
	"context"

	"github.com/candor-labs/candor/pkg/core/types"
)

// Frame is one decoded video frame handed to the landmark locator.
type Frame struct {
	// Data is the encoded frame image (JPEG or PNG).
	Data []byte
	// Width and Height are the frame dimensions in pixels.
	Width  int
	Height int
	// Timestamp is the frame's offset into the recording, in seconds.
	Timestamp float64
}

// Waveform is a mono audio clip handed to the feature extractor and the
// transcriber.
type Waveform struct {
	// PCM is 16-bit little-endian signed audio.
	PCM []byte
	// SampleRate is the sample rate in Hz.
	SampleRate int
}

// LandmarkLocator finds the gaze center in a frame. The second return value
// is false when no face was detected; such frames simply contribute no
// sample.
type LandmarkLocator interface {
	Locate(ctx context.Context, frame Frame) (types.Point, bool, error)
}

// FeatureExtractor computes the tone feature vector for an audio clip.
type FeatureExtractor interface {
	Extract(ctx context.Context, audio Waveform) (*types.ToneFeatures, error)
}

// Transcriber converts an audio clip to text. Implementations should return
// an empty string rather than an error for clips with no recognizable speech;
// callers treat an empty transcript as degraded quality, not failure.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Waveform) (string, error)
}

// NoopLocator never detects a face. It stands in for an unconfigured
// landmark collaborator so the gaze signal degrades to empty.
type NoopLocator struct{}

func (NoopLocator) Locate(context.Context, Frame) (types.Point, bool, error) {
	return types.Point{}, false, nil
}

// NoopExtractor produces no tone vector.
type NoopExtractor struct{}

func (NoopExtractor) Extract(context.Context, Waveform) (*types.ToneFeatures, error) {
	return nil, nil
}

// NoopTranscriber produces no transcript.
type NoopTranscriber struct{}

func (NoopTranscriber) Transcribe(context.Context, Waveform) (string, error) {
	return "", nil
}
