package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
	"github.com/candor-labs/candor/pkg/media"
	"github.com/candor-labs/candor/pkg/store"
)

type fakeLocator struct {
	points []types.Point
	misses int
	err    error
	calls  int
}

func (f *fakeLocator) Locate(_ context.Context, _ media.Frame) (types.Point, bool, error) {
	i := f.calls
	f.calls++
	if f.err != nil {
		return types.Point{}, false, f.err
	}
	if i < f.misses {
		return types.Point{}, false, nil
	}
	idx := i - f.misses
	if idx >= len(f.points) {
		return types.Point{}, false, nil
	}
	return f.points[idx], true, nil
}

type fakeExtractor struct {
	tone *types.ToneFeatures
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ media.Waveform) (*types.ToneFeatures, error) {
	return f.tone, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ media.Waveform) (string, error) {
	return f.text, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frames(n int) []media.Frame {
	out := make([]media.Frame, n)
	for i := range out {
		out[i] = media.Frame{Data: []byte{1}, Width: 2, Height: 2, Timestamp: float64(i)}
	}
	return out
}

func audio() media.Waveform {
	return media.Waveform{PCM: []byte{0, 1, 2, 3}, SampleRate: 16000}
}

func newFixture(t *testing.T, loc *fakeLocator, ext *fakeExtractor, tr *fakeTranscriber) (*Service, *store.Memory, *ArtifactStore) {
	t.Helper()
	mem := store.NewMemory()
	arts, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	svc := NewService(ServiceConfig{
		Engine:      core.NewEngine(nil, nil, nil, core.WithLogger(discardLogger())),
		Baselines:   mem,
		Results:     mem,
		Locator:     loc,
		Extractor:   ext,
		Transcriber: tr,
		Artifacts:   arts,
		Logger:      discardLogger(),
	})
	return svc, mem, arts
}

func TestEstablishBaselineComputesMeanCenter(t *testing.T) {
	loc := &fakeLocator{points: []types.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}}
	ext := &fakeExtractor{tone: &types.ToneFeatures{PitchMean: 120, PitchStd: 8}}
	svc, mem, _ := newFixture(t, loc, ext, &fakeTranscriber{})

	rec, err := svc.EstablishBaseline(context.Background(), "u1", frames(2), audio())
	if err != nil {
		t.Fatalf("EstablishBaseline: %v", err)
	}
	if rec.GazeCenter == nil {
		t.Fatal("expected gaze center")
	}
	if rec.GazeCenter.X != 20 || rec.GazeCenter.Y != 30 {
		t.Fatalf("unexpected center %+v", rec.GazeCenter)
	}
	if rec.Tone == nil || rec.Tone.PitchMean != 120 {
		t.Fatalf("unexpected tone %+v", rec.Tone)
	}

	stored, ok, err := mem.Get(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("stored baseline: ok=%v err=%v", ok, err)
	}
	if stored.GazeCenter == nil || stored.GazeCenter.X != 20 {
		t.Fatalf("unexpected stored center %+v", stored.GazeCenter)
	}
}

func TestEstablishBaselineSkipsFailedFrames(t *testing.T) {
	loc := &fakeLocator{err: errors.New("service down")}
	ext := &fakeExtractor{tone: &types.ToneFeatures{PitchMean: 100}}
	svc, _, _ := newFixture(t, loc, ext, &fakeTranscriber{})

	rec, err := svc.EstablishBaseline(context.Background(), "u1", frames(3), audio())
	if err != nil {
		t.Fatalf("EstablishBaseline: %v", err)
	}
	if rec.GazeCenter != nil {
		t.Fatal("expected no gaze center when every frame fails")
	}
	if rec.Tone == nil {
		t.Fatal("expected tone baseline to survive frame failures")
	}
}

func TestEstablishBaselineNoSignalsFails(t *testing.T) {
	loc := &fakeLocator{}
	ext := &fakeExtractor{err: errors.New("extractor down")}
	svc, _, _ := newFixture(t, loc, ext, &fakeTranscriber{})

	_, err := svc.EstablishBaseline(context.Background(), "u1", nil, audio())
	if !core.IsInsufficientData(err) {
		t.Fatalf("expected insufficient-data error, got %v", err)
	}
}

func TestAnalyzeSegmentWithoutBaselineFails(t *testing.T) {
	svc, _, _ := newFixture(t, &fakeLocator{}, &fakeExtractor{}, &fakeTranscriber{})

	_, err := svc.AnalyzeSegment(context.Background(), SegmentRequest{
		SessionID: "s1", SubjectID: "ghost",
	})
	if !core.IsBaselineMissing(err) {
		t.Fatalf("expected baseline-missing error, got %v", err)
	}
}

func TestAnalyzeSegmentPersistsResultAndArtifact(t *testing.T) {
	loc := &fakeLocator{points: []types.Point{
		{X: 100, Y: 100},
		{X: 105, Y: 100},
		{X: 110, Y: 100},
		{X: 180, Y: 100},
	}}
	ext := &fakeExtractor{tone: &types.ToneFeatures{PitchMean: 150, PitchStd: 18}}
	tr := &fakeTranscriber{text: "yes I was there"}
	svc, mem, arts := newFixture(t, loc, ext, tr)

	ctx := context.Background()
	if err := mem.Put(ctx, types.BaselineRecord{
		Subject:    "u1",
		GazeCenter: &types.Point{X: 100, Y: 100},
		Tone:       &types.ToneFeatures{PitchMean: 120, PitchStd: 10},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := svc.AnalyzeSegment(ctx, SegmentRequest{
		SessionID:  "s1",
		SubjectID:  "u1",
		AnalyzerID: "u2",
		Frames:     frames(4),
		Audio:      audio(),
	})
	if err != nil {
		t.Fatalf("AnalyzeSegment: %v", err)
	}
	// Deviations 0, 5, 10, 80: mean 23.75, max 80.
	wantGaze := (23.75/50)*40 + (80.0/100)*60
	if math.Abs(rec.Scores.Gaze-wantGaze) > 1e-9 {
		t.Fatalf("gaze score %v, want %v", rec.Scores.Gaze, wantGaze)
	}
	// Pitch delta 30, std delta 8.
	wantTone := (30.0/50)*30 + (8.0/20)*70
	if math.Abs(rec.Scores.Tone-wantTone) > 1e-9 {
		t.Fatalf("tone score %v, want %v", rec.Scores.Tone, wantTone)
	}
	if rec.ID == "" {
		t.Fatal("expected result ID")
	}

	latest, ok, err := mem.LatestResult(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("LatestResult: ok=%v err=%v", ok, err)
	}
	if latest.ID != rec.ID {
		t.Fatalf("stored result %q, want %q", latest.ID, rec.ID)
	}

	got, ok, err := arts.Read("s1")
	if err != nil || !ok {
		t.Fatalf("artifact read: ok=%v err=%v", ok, err)
	}
	if got.Scores.Overall != rec.Scores.Overall || got.SubjectID != "u1" {
		t.Fatalf("artifact mismatch: %+v", got)
	}
}

func TestAnalyzeSegmentDegradesFailedCollaborators(t *testing.T) {
	loc := &fakeLocator{points: []types.Point{{X: 100, Y: 100}}}
	ext := &fakeExtractor{err: errors.New("extractor down")}
	tr := &fakeTranscriber{err: errors.New("stt down")}
	svc, mem, _ := newFixture(t, loc, ext, tr)

	ctx := context.Background()
	if err := mem.Put(ctx, types.BaselineRecord{
		Subject:    "u1",
		GazeCenter: &types.Point{X: 100, Y: 100},
		Tone:       &types.ToneFeatures{PitchMean: 120},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := svc.AnalyzeSegment(ctx, SegmentRequest{
		SessionID: "s1", SubjectID: "u1", Frames: frames(1), Audio: audio(),
	})
	if err != nil {
		t.Fatalf("AnalyzeSegment: %v", err)
	}
	if rec.Scores.Tone != 0 {
		t.Fatalf("tone score %v, want 0 for degraded extractor", rec.Scores.Tone)
	}
	if rec.Scores.Contradiction != 0 {
		t.Fatalf("contradiction score %v, want 0 for degraded transcriber", rec.Scores.Contradiction)
	}
}

func TestArtifactFieldNames(t *testing.T) {
	arts, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	rec := types.ResultRecord{
		ID:        "r1",
		SessionID: "s1",
		SubjectID: "u1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Scores:    types.ScoreSet{Overall: 40, Gaze: 50, Tone: 20, Contradiction: 30},
	}
	if err := arts.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(arts.root, "results", "s1_analysis.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"subject_id", "session_id", "timestamp", "scores", "confidence_level"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("artifact missing key %q", key)
		}
	}
	scores, ok := doc["scores"].(map[string]any)
	if !ok {
		t.Fatalf("scores not an object: %v", doc["scores"])
	}
	for _, key := range []string{"overall", "eye_movement", "contradiction", "tonal_variation"} {
		if _, ok := scores[key]; !ok {
			t.Fatalf("scores missing key %q", key)
		}
	}
	if scores["eye_movement"].(float64) != 50 {
		t.Fatalf("eye_movement %v, want 50", scores["eye_movement"])
	}
}

func TestArtifactDeleteAndMissingRead(t *testing.T) {
	arts, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	if _, ok, err := arts.Read("nope"); err != nil || ok {
		t.Fatalf("missing read: ok=%v err=%v", ok, err)
	}
	if err := arts.Delete("nope"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if err := arts.Write(types.ResultRecord{SessionID: "s1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := arts.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := arts.Read("s1"); ok {
		t.Fatal("artifact survived delete")
	}
}

func TestWorkersRunJobs(t *testing.T) {
	w := NewWorkers(2, 8, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := w.Submit(func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if got := ran.Load(); got != 5 {
		t.Fatalf("ran %d jobs, want 5", got)
	}

	w.Shutdown()
	if err := w.Submit(func(context.Context) {}); err == nil {
		t.Fatal("expected submit to fail after shutdown")
	}
}

func TestWorkersQueueBound(t *testing.T) {
	w := NewWorkers(1, 1, discardLogger())
	// Not started: the single queue slot fills and the next submit fails.
	if err := w.Submit(func(context.Context) {}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := w.Submit(func(context.Context) {}); err == nil {
		t.Fatal("expected queue-full error")
	}
}

func TestWorkersRecoverPanics(t *testing.T) {
	w := NewWorkers(1, 4, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	done := make(chan struct{})
	if err := w.Submit(func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := w.Submit(func(context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	w.Shutdown()
}
