// Package baseline computes and stores per-subject calibration records.
package baseline

import (
	"context"
	"sync"
	"time"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
)

// Store holds one calibration record per subject. Put replaces any prior
// record for the subject; records are never merged.
type Store interface {
	Put(ctx context.Context, rec types.BaselineRecord) error
	Get(ctx context.Context, subject string) (types.BaselineRecord, bool, error)
}

// Compute builds a BaselineRecord from calibration inputs. The gaze center is
// the arithmetic mean of the provided samples; frames where no gaze was
// detected contribute no sample and an empty sample set leaves the center
// unset. Tone features are stored verbatim. Calibration with neither usable
// gaze samples nor tone features fails with an insufficient-data error.
func Compute(subject string, gazeSamples []types.Point, tone *types.ToneFeatures, establishedAt time.Time) (types.BaselineRecord, error) {
	if len(gazeSamples) == 0 && tone == nil {
		return types.BaselineRecord{}, core.NewInsufficientDataError(
			"calibration produced no usable gaze samples and no tone features")
	}

	rec := types.BaselineRecord{
		Subject:       subject,
		Tone:          tone,
		EstablishedAt: establishedAt,
	}

	if len(gazeSamples) > 0 {
		var sx, sy float64
		for _, p := range gazeSamples {
			sx += p.X
			sy += p.Y
		}
		n := float64(len(gazeSamples))
		rec.GazeCenter = &types.Point{X: sx / n, Y: sy / n}
	}

	return rec, nil
}

// MemoryStore is an in-memory Store keyed by subject.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]types.BaselineRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.BaselineRecord)}
}

// Put stores the record, replacing any prior baseline for the subject.
func (s *MemoryStore) Put(ctx context.Context, rec types.BaselineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Subject] = rec
	return nil
}

// Get returns the subject's baseline, if one has been established.
func (s *MemoryStore) Get(ctx context.Context, subject string) (types.BaselineRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subject]
	return rec, ok, nil
}
