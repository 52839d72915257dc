package production

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"clipforge/internal/assembly"
	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

// Orchestrator drives one content item from planned to ready: shared asset
// upload, parallel per-section generation, assembly, leading-artifact
// validation, artifact persistence, and the final status write. It is the
// single place that catches pipeline failures and converts them into a
// persisted error status.
type Orchestrator struct {
	contents   ContentStore
	queue      TaskEnqueuer
	components ComponentResolver
	media      MediaGenerator
	voice      VoiceSynthesizer
	lipsync    LipSyncer
	storage    ObjectStore
	assembler  Assembler

	logger *slog.Logger
	dryRun bool
	now    func() time.Time
}

// Options bundles the orchestrator's collaborators.
type Options struct {
	Contents   ContentStore
	Queue      TaskEnqueuer
	Components ComponentResolver
	Media      MediaGenerator
	Voice      VoiceSynthesizer
	LipSync    LipSyncer
	Storage    ObjectStore
	Assembler  Assembler
	Logger     *slog.Logger
	DryRun     bool
}

// New builds an orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		contents:   opts.Contents,
		queue:      opts.Queue,
		components: opts.Components,
		media:      opts.Media,
		voice:      opts.Voice,
		lipsync:    opts.LipSync,
		storage:    opts.Storage,
		assembler:  opts.Assembler,
		logger:     logger.With(logging.String(logging.FieldComponent, "production")),
		dryRun:     opts.DryRun,
		now:        time.Now,
	}
}

type runResult struct {
	videoRef  string
	folderRef string
}

// Produce runs the full pipeline for one content id. On success the content
// ends `ready` with its artifact references and timing recorded and a
// publish task enqueued; on failure it ends `error` with the message
// persisted, and the original pipeline error is returned to the caller.
func (o *Orchestrator) Produce(ctx context.Context, contentID string) error {
	ctx = services.WithContentID(ctx, contentID)
	ctx = services.WithStage(ctx, "production")
	logger := logging.WithContext(ctx, o.logger)

	content, err := o.contents.GetContent(ctx, contentID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "production", "load", "get content", err)
	}
	if content == nil {
		return services.Wrap(services.ErrNotFound, "production", "load",
			fmt.Sprintf("content %q", contentID), nil)
	}

	if o.dryRun {
		if err := validateSections(content); err != nil {
			return err
		}
		o.logPlan(logger, content)
		return nil
	}

	rows, err := o.contents.TransitionContent(ctx, contentID, store.ContentPlanned, store.ContentProducing)
	if err != nil {
		return services.Wrap(services.ErrTransient, "production", "claim", "transition to producing", err)
	}
	if rows == 0 {
		return services.Wrap(services.ErrPrecondition, "production", "claim",
			fmt.Sprintf("content %q is not planned", contentID), nil)
	}

	started := o.now()
	logger.Info("production started", logging.Int("sections", len(content.Sections)))

	result, runErr := o.run(ctx, logger, content)
	elapsed := o.now().Sub(started)

	if runErr != nil {
		// The original pipeline error is what propagates; a failure to
		// persist the error status must not mask it.
		if _, failErr := o.contents.FailProduction(ctx, contentID, runErr.Error(), elapsed); failErr != nil {
			logger.Warn("failed to persist error status", logging.Error(failErr))
		}
		logger.Error("production failed",
			logging.Duration("elapsed", elapsed),
			logging.Error(runErr))
		return runErr
	}

	rows, err = o.contents.FinishProduction(ctx, contentID, result.videoRef, result.folderRef, elapsed)
	if err != nil {
		return services.Wrap(services.ErrTransient, "production", "finish", "persist result", err)
	}
	if rows == 0 {
		return services.Wrap(services.ErrPrecondition, "production", "finish",
			fmt.Sprintf("content %q left producing before completion", contentID), nil)
	}

	o.enqueuePublish(ctx, logger, contentID)
	logger.Info("production finished",
		logging.Duration("elapsed", elapsed),
		logging.String("video_ref", result.videoRef))
	return nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, content *store.Content) (runResult, error) {
	var empty runResult

	// Scripts are validated before any external call so a misplanned item
	// never burns generation quota on a partial video.
	if err := validateSections(content); err != nil {
		return empty, err
	}

	// Shared asset: uploaded exactly once, reused by every section.
	character, err := o.components.Get(ctx, content.CharacterRef)
	if err != nil {
		return empty, err
	}
	characterImage, err := o.storage.Download(ctx, character.ImageRef)
	if err != nil {
		return empty, err
	}
	folder := o.storage.FolderFor(o.now(), content.ContentID)
	sharedRef, err := o.storage.Upload(ctx, folder, "character.png", characterImage)
	if err != nil {
		return empty, err
	}

	buffers, err := o.runSections(ctx, content, sharedRef)
	if err != nil {
		return empty, err
	}

	clips := make([]assembly.Clip, len(buffers))
	for i, buffer := range buffers {
		clips[i] = assembly.Clip{
			Label: fmt.Sprintf("section_%02d", i+1),
			Data:  buffer,
		}
	}
	final, err := o.assembler.Concatenate(ctx, clips)
	if err != nil {
		return empty, err
	}

	final, err = o.validate(ctx, logger, final)
	if err != nil {
		return empty, err
	}

	for i, buffer := range buffers {
		name := fmt.Sprintf("section_%02d.mp4", i+1)
		if _, err := o.storage.Upload(ctx, folder, name, buffer); err != nil {
			return empty, err
		}
	}
	videoRef, err := o.storage.Upload(ctx, folder, "final.mp4", final)
	if err != nil {
		return empty, err
	}

	return runResult{videoRef: videoRef, folderRef: folder}, nil
}

// runSections fans out the per-section pipeline: generation and voice
// synthesis run concurrently, lip sync joins them, and the synchronized
// clip is downloaded into memory. Buffers are paired with sections by
// index, never by completion order.
func (o *Orchestrator) runSections(ctx context.Context, content *store.Content, sharedRef string) ([][]byte, error) {
	buffers := make([][]byte, len(content.Sections))

	g, gctx := errgroup.WithContext(ctx)
	for i, section := range content.Sections {
		g.Go(func() error {
			sctx := services.WithSection(gctx, section.Index)
			component, err := o.components.Get(sctx, section.ComponentRef)
			if err != nil {
				return err
			}

			var clipRef, audioRef string
			inner, ictx := errgroup.WithContext(sctx)
			inner.Go(func() error {
				ref, err := o.media.GenerateClip(ictx, sharedRef, component.MotionRef)
				if err != nil {
					return err
				}
				clipRef = ref
				return nil
			})
			inner.Go(func() error {
				ref, err := o.voice.Synthesize(ictx, section.Script, content.VoiceID, content.ScriptLanguage)
				if err != nil {
					return err
				}
				audioRef = ref
				return nil
			})
			if err := inner.Wait(); err != nil {
				return err
			}

			syncedRef, err := o.lipsync.Sync(sctx, clipRef, audioRef)
			if err != nil {
				return err
			}
			buffer, err := o.storage.Download(sctx, syncedRef)
			if err != nil {
				return err
			}
			buffers[i] = buffer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buffers, nil
}

// validate auto-corrects a leading artifact with one trim and one re-check.
// Mid-timeline artifacts are quality signals, never failures.
func (o *Orchestrator) validate(ctx context.Context, logger *slog.Logger, final []byte) ([]byte, error) {
	regions, err := o.assembler.DetectArtifacts(ctx, final)
	if err != nil {
		return nil, err
	}
	for _, region := range regions {
		if !region.Leading() {
			logger.Warn("mid-timeline artifact detected",
				logging.Float64("start_sec", region.Start),
				logging.Float64("duration_sec", region.Duration))
		}
	}

	leading, found := leadingRegion(regions)
	if !found {
		return final, nil
	}

	logger.Info("trimming leading artifact", logging.Float64("duration_sec", leading.Duration))
	trimmed, err := o.assembler.TrimLeading(ctx, final, leading.Duration)
	if err != nil {
		return nil, err
	}

	recheck, err := o.assembler.DetectArtifacts(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	if still, ok := leadingRegion(recheck); ok {
		logger.Warn("leading artifact persists after trim",
			logging.Float64("duration_sec", still.Duration))
	}
	return trimmed, nil
}

func leadingRegion(regions []assembly.Region) (assembly.Region, bool) {
	for _, region := range regions {
		if region.Leading() {
			return region, true
		}
	}
	return assembly.Region{}, false
}

func (o *Orchestrator) enqueuePublish(ctx context.Context, logger *slog.Logger, contentID string) {
	if o.queue == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"content_id": contentID})
	if _, err := o.queue.Enqueue(ctx, taskqueue.TypePublish, payload); err != nil {
		// Partial application is tolerable: the content is ready and
		// discoverable by status poll even without the task.
		logger.Warn("failed to enqueue publish task", logging.Error(err))
	}
}

func (o *Orchestrator) logPlan(logger *slog.Logger, content *store.Content) {
	logger.Info("dry run: would upload shared character asset",
		logging.String("character_ref", content.CharacterRef))
	for _, section := range content.Sections {
		logger.Info("dry run: would produce section",
			logging.Int(logging.FieldSection, section.Index),
			logging.String("component_ref", section.ComponentRef),
			logging.Int("script_chars", len(section.Script)))
	}
	logger.Info("dry run: would assemble, validate, and upload artifacts",
		logging.Int("sections", len(content.Sections)))
}

func validateSections(content *store.Content) error {
	if len(content.Sections) == 0 {
		return services.Wrap(services.ErrPrecondition, "production", "preflight",
			fmt.Sprintf("content %q has no sections", content.ContentID), nil)
	}
	for _, section := range content.Sections {
		if strings.TrimSpace(section.Script) == "" {
			return services.Wrap(services.ErrPrecondition, "production", "preflight",
				fmt.Sprintf("section %d has no script", section.Index), nil)
		}
	}
	return nil
}
