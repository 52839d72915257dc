package production

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipforge/internal/assembly"
	"clipforge/internal/inventory"
	"clipforge/internal/services"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
	"clipforge/internal/testsupport"
)

type fakeComponents struct {
	calls atomic.Int32
}

func (f *fakeComponents) Get(ctx context.Context, id string) (inventory.Component, error) {
	f.calls.Add(1)
	return inventory.Component{
		ID:       id,
		ImageRef: "img-" + id,
		MotionRef: func() string {
			if strings.HasPrefix(id, "character") {
				return ""
			}
			return "motion-" + id
		}(),
	}, nil
}

type fakeMedia struct {
	calls atomic.Int32
	err   error
}

func (f *fakeMedia) GenerateClip(ctx context.Context, imageRef, motionRef string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "clip-" + motionRef, nil
}

type fakeVoice struct {
	calls atomic.Int32
	err   error
}

func (f *fakeVoice) Synthesize(ctx context.Context, script, voiceID, language string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("audio-%d", len(script)), nil
}

type fakeLipsync struct {
	calls atomic.Int32
}

func (f *fakeLipsync) Sync(ctx context.Context, videoRef, audioRef string) (string, error) {
	f.calls.Add(1)
	return "synced-" + videoRef, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []string
	final   []byte
}

func (f *fakeStorage) FolderFor(date time.Time, contentID string) string {
	return "clipforge/" + date.UTC().Format("2006-01-02") + "/" + contentID
}

func (f *fakeStorage) Upload(ctx context.Context, folder, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, name)
	if name == "final.mp4" {
		f.final = append([]byte(nil), data...)
	}
	return "store://" + folder + "/" + name, nil
}

func (f *fakeStorage) Download(ctx context.Context, ref string) ([]byte, error) {
	return []byte("bytes-of-" + ref), nil
}

func (f *fakeStorage) artifactUploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	artifacts := make([]string, 0, len(f.uploads))
	for _, name := range f.uploads {
		if name != "character.png" {
			artifacts = append(artifacts, name)
		}
	}
	return artifacts
}

type fakeAssembler struct {
	mu            sync.Mutex
	concatOrder   []string
	detectResults [][]assembly.Region
	trims         int
}

func (f *fakeAssembler) Concatenate(ctx context.Context, clips []assembly.Clip) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var joined bytes.Buffer
	for _, clip := range clips {
		f.concatOrder = append(f.concatOrder, clip.Label)
		joined.Write(clip.Data)
		joined.WriteByte('|')
	}
	return joined.Bytes(), nil
}

func (f *fakeAssembler) DetectArtifacts(ctx context.Context, buffer []byte) ([]assembly.Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.detectResults) == 0 {
		return nil, nil
	}
	next := f.detectResults[0]
	f.detectResults = f.detectResults[1:]
	return next, nil
}

func (f *fakeAssembler) TrimLeading(ctx context.Context, buffer []byte, seconds float64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trims++
	return append([]byte("trimmed:"), buffer...), nil
}

type fixture struct {
	store      *store.Store
	queue      *taskqueue.Queue
	components *fakeComponents
	media      *fakeMedia
	voice      *fakeVoice
	lipsync    *fakeLipsync
	storage    *fakeStorage
	assembler  *fakeAssembler
	orch       *Orchestrator
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st, q := testsupport.MustOpenQueue(t, cfg)

	f := &fixture{
		store:      st,
		queue:      q,
		components: &fakeComponents{},
		media:      &fakeMedia{},
		voice:      &fakeVoice{},
		lipsync:    &fakeLipsync{},
		storage:    &fakeStorage{},
		assembler:  &fakeAssembler{},
	}
	options := Options{
		Contents:   st,
		Queue:      q,
		Components: f.components,
		Media:      f.media,
		Voice:      f.voice,
		LipSync:    f.lipsync,
		Storage:    f.storage,
		Assembler:  f.assembler,
	}
	for _, opt := range opts {
		opt(&options)
	}
	f.orch = New(options)

	// Deterministic elapsed time: every clock read advances two seconds.
	var ticks int64
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	f.orch.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 2 * time.Second)
	}
	return f
}

func TestProduceHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewPlannedContent(t, f.store, "content-a", testsupport.ThreeSections())

	if err := f.orch.Produce(ctx, "content-a"); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	item, err := f.store.GetContent(ctx, "content-a")
	if err != nil || item == nil {
		t.Fatalf("GetContent: %v %v", item, err)
	}
	if item.Status != store.ContentReady {
		t.Fatalf("expected ready, got %s", item.Status)
	}
	if item.VideoArtifactRef == "" || item.DriveFolderRef == "" {
		t.Fatalf("artifact refs not persisted: %+v", item)
	}
	if item.ProcessingTimeSec <= 0 {
		t.Fatalf("processing time not recorded: %f", item.ProcessingTimeSec)
	}

	artifacts := f.storage.artifactUploads()
	if len(artifacts) != 4 {
		t.Fatalf("expected 4 artifact uploads (3 sections + final), got %v", artifacts)
	}
	wantOrder := []string{"section_01", "section_02", "section_03"}
	for i, label := range wantOrder {
		if f.assembler.concatOrder[i] != label {
			t.Fatalf("clip order broken: %v", f.assembler.concatOrder)
		}
	}

	tasks, err := f.queue.List(ctx, taskqueue.StatusPending)
	if err != nil {
		t.Fatalf("List tasks: %v", err)
	}
	var publishTasks int
	for _, task := range tasks {
		if task.Type == taskqueue.TypePublish {
			publishTasks++
		}
	}
	if publishTasks != 1 {
		t.Fatalf("expected one publish task, got %d", publishTasks)
	}
}

func TestProduceMissingScriptAbortsBeforeGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sections := testsupport.ThreeSections()
	sections[1].Script = "   "
	testsupport.NewPlannedContent(t, f.store, "content-b", sections)

	err := f.orch.Produce(ctx, "content-b")
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "section 1") {
		t.Fatalf("error must name the missing section: %v", err)
	}
	if f.media.calls.Load() != 0 || f.voice.calls.Load() != 0 || f.lipsync.calls.Load() != 0 {
		t.Fatal("no generation client may be called when a script is missing")
	}

	item, _ := f.store.GetContent(ctx, "content-b")
	if item.Status != store.ContentError {
		t.Fatalf("expected error status, got %s", item.Status)
	}
	if !strings.Contains(item.ErrorMessage, "section 1") {
		t.Fatalf("persisted message must name the section: %q", item.ErrorMessage)
	}
}

func TestProduceTrimsLeadingArtifactOnce(t *testing.T) {
	f := newFixture(t)
	f.assembler.detectResults = [][]assembly.Region{
		{{Start: 0, End: 0.4, Duration: 0.4}},
		{},
	}
	ctx := context.Background()
	testsupport.NewPlannedContent(t, f.store, "content-c", testsupport.ThreeSections())

	if err := f.orch.Produce(ctx, "content-c"); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if f.assembler.trims != 1 {
		t.Fatalf("expected exactly one trim, got %d", f.assembler.trims)
	}
	if !bytes.HasPrefix(f.storage.final, []byte("trimmed:")) {
		t.Fatal("final upload must be the trimmed artifact")
	}
}

func TestProduceIgnoresMidTimelineArtifacts(t *testing.T) {
	f := newFixture(t)
	f.assembler.detectResults = [][]assembly.Region{
		{{Start: 12.5, End: 13.0, Duration: 0.5}},
	}
	ctx := context.Background()
	testsupport.NewPlannedContent(t, f.store, "content-d", testsupport.ThreeSections())

	if err := f.orch.Produce(ctx, "content-d"); err != nil {
		t.Fatalf("mid-timeline artifact must not fail the run: %v", err)
	}
	if f.assembler.trims != 0 {
		t.Fatalf("mid-timeline artifact must not be trimmed, got %d trims", f.assembler.trims)
	}
	item, _ := f.store.GetContent(ctx, "content-d")
	if item.Status != store.ContentReady {
		t.Fatalf("expected ready, got %s", item.Status)
	}
}

func TestProduceGenerationFailureWritesErrorStatus(t *testing.T) {
	f := newFixture(t)
	f.voice.err = services.Wrap(services.ErrTransient, "voice", "synthesize", "upstream gone", nil)
	ctx := context.Background()
	testsupport.NewPlannedContent(t, f.store, "content-e", testsupport.ThreeSections())

	err := f.orch.Produce(ctx, "content-e")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("original error must propagate: %v", err)
	}

	item, _ := f.store.GetContent(ctx, "content-e")
	if item.Status != store.ContentError {
		t.Fatalf("expected error status, got %s", item.Status)
	}
	if !strings.Contains(item.ErrorMessage, "upstream gone") {
		t.Fatalf("error message not persisted: %q", item.ErrorMessage)
	}
	if item.ProcessingTimeSec <= 0 {
		t.Fatalf("elapsed time not recorded on failure: %f", item.ProcessingTimeSec)
	}
}

func TestProduceRejectsUnplannedContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.NewPlannedContent(t, f.store, "content-f", testsupport.ThreeSections())
	if _, err := f.store.TransitionContent(ctx, "content-f", store.ContentPlanned, store.ContentProducing); err != nil {
		t.Fatalf("setup transition: %v", err)
	}

	err := f.orch.Produce(ctx, "content-f")
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error for non-planned content, got: %v", err)
	}
}

func TestProduceUnknownContent(t *testing.T) {
	f := newFixture(t)

	err := f.orch.Produce(context.Background(), "nope")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got: %v", err)
	}
}

func TestDryRunMakesNoCallsAndNoWrites(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.DryRun = true })
	ctx := context.Background()
	testsupport.NewPlannedContent(t, f.store, "content-g", testsupport.ThreeSections())

	if err := f.orch.Produce(ctx, "content-g"); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if f.media.calls.Load() != 0 || f.voice.calls.Load() != 0 {
		t.Fatal("dry run must not call generation clients")
	}
	if len(f.storage.uploads) != 0 {
		t.Fatalf("dry run must not upload, got %v", f.storage.uploads)
	}
	item, _ := f.store.GetContent(ctx, "content-g")
	if item.Status != store.ContentPlanned {
		t.Fatalf("dry run must not change status, got %s", item.Status)
	}
}
