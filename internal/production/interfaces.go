package production

import (
	"context"
	"encoding/json"
	"time"

	"clipforge/internal/assembly"
	"clipforge/internal/inventory"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

// MediaGenerator renders a video clip from a character image and an
// optional motion reference.
type MediaGenerator interface {
	GenerateClip(ctx context.Context, imageRef, motionRef string) (string, error)
}

// VoiceSynthesizer renders script text into audio.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, script, voiceID, language string) (string, error)
}

// LipSyncer aligns a clip's mouth movement to an audio track.
type LipSyncer interface {
	Sync(ctx context.Context, videoRef, audioRef string) (string, error)
}

// ObjectStore moves artifact bytes in and out of durable storage.
type ObjectStore interface {
	FolderFor(date time.Time, contentID string) string
	Upload(ctx context.Context, folder, name string, data []byte) (string, error)
	Download(ctx context.Context, ref string) ([]byte, error)
}

// Assembler joins clips and validates the assembled result.
type Assembler interface {
	Concatenate(ctx context.Context, clips []assembly.Clip) ([]byte, error)
	DetectArtifacts(ctx context.Context, buffer []byte) ([]assembly.Region, error)
	TrimLeading(ctx context.Context, buffer []byte, seconds float64) ([]byte, error)
}

// ComponentResolver looks up reusable generation inputs by id.
type ComponentResolver interface {
	Get(ctx context.Context, id string) (inventory.Component, error)
}

// ContentStore is the slice of the status store the orchestrator uses.
type ContentStore interface {
	GetContent(ctx context.Context, id string) (*store.Content, error)
	TransitionContent(ctx context.Context, id string, from, to store.ContentStatus) (int64, error)
	FinishProduction(ctx context.Context, id, videoRef, folderRef string, elapsed time.Duration) (int64, error)
	FailProduction(ctx context.Context, id, message string, elapsed time.Duration) (int64, error)
}

// TaskEnqueuer hands completed work to the next stage.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, taskType taskqueue.Type, payload json.RawMessage) (int64, error)
}
