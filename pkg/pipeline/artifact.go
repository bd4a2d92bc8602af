package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
)

// ArtifactStore writes per-session result artifacts under
// <root>/results/<sessionID>_analysis.json. The artifact mirrors the
// persisted result record for operators who want a file-shaped copy.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates the results directory under root if needed.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "results"), 0o755); err != nil {
		return nil, core.NewStorageError("create results directory", err)
	}
	return &ArtifactStore{root: root}, nil
}

type artifactScores struct {
	Overall       float64 `json:"overall"`
	EyeMovement   float64 `json:"eye_movement"`
	Contradiction float64 `json:"contradiction"`
	Tonal         float64 `json:"tonal_variation"`
}

type artifactDoc struct {
	SubjectID  string         `json:"subject_id"`
	SessionID  string         `json:"session_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Scores     artifactScores `json:"scores"`
	Confidence float64        `json:"confidence_level"`
}

func (a *ArtifactStore) path(sessionID string) string {
	return filepath.Join(a.root, "results", fmt.Sprintf("%s_analysis.json", sessionID))
}

// Write persists the artifact for rec's session, replacing any prior one.
func (a *ArtifactStore) Write(rec types.ResultRecord) error {
	doc := artifactDoc{
		SubjectID: rec.SubjectID,
		SessionID: rec.SessionID,
		Timestamp: rec.Timestamp,
		Scores: artifactScores{
			Overall:       rec.Scores.Overall,
			EyeMovement:   rec.Scores.Gaze,
			Contradiction: rec.Scores.Contradiction,
			Tonal:         rec.Scores.Tone,
		},
		Confidence: rec.Confidence,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return core.NewStorageError("encode result artifact", err)
	}
	if err := os.WriteFile(a.path(rec.SessionID), data, 0o644); err != nil {
		return core.NewStorageError("write result artifact", err)
	}
	return nil
}

// Read loads the artifact for a session. The second return is false when no
// artifact exists.
func (a *ArtifactStore) Read(sessionID string) (types.ResultRecord, bool, error) {
	data, err := os.ReadFile(a.path(sessionID))
	if os.IsNotExist(err) {
		return types.ResultRecord{}, false, nil
	}
	if err != nil {
		return types.ResultRecord{}, false, core.NewStorageError("read result artifact", err)
	}
	var doc artifactDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.ResultRecord{}, false, core.NewStorageError("decode result artifact", err)
	}
	return types.ResultRecord{
		SessionID: doc.SessionID,
		SubjectID: doc.SubjectID,
		Timestamp: doc.Timestamp,
		Scores: types.ScoreSet{
			Overall:       doc.Scores.Overall,
			Gaze:          doc.Scores.EyeMovement,
			Tone:          doc.Scores.Tonal,
			Contradiction: doc.Scores.Contradiction,
		},
		Confidence: doc.Confidence,
	}, true, nil
}

// Delete removes the artifact for a session. Missing artifacts are not an
// error.
func (a *ArtifactStore) Delete(sessionID string) error {
	err := os.Remove(a.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return core.NewStorageError("delete result artifact", err)
	}
	return nil
}
