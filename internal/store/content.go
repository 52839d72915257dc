package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewContentParams carries the planner-supplied attributes for a new item.
type NewContentParams struct {
	ContentID       string
	Status          ContentStatus
	HypothesisID    string
	ContentFormat   string
	ScriptLanguage  string
	PlannedPostDate string
	Sections        []Section
	VoiceID         string
	CharacterRef    string
}

// NewContent inserts a content item. When no id is supplied one is generated.
func (s *Store) NewContent(ctx context.Context, params NewContentParams) (*Content, error) {
	id := strings.TrimSpace(params.ContentID)
	if id == "" {
		id = uuid.NewString()
	}
	status := params.Status
	if status == "" {
		status = ContentPendingApproval
	}
	if _, ok := contentStatusSet[status]; !ok {
		return nil, fmt.Errorf("unknown content status %q", status)
	}
	format := strings.TrimSpace(params.ContentFormat)
	if format == "" {
		format = "video"
	}

	var sectionsJSON any
	if len(params.Sections) > 0 {
		raw, err := json.Marshal(params.Sections)
		if err != nil {
			return nil, fmt.Errorf("marshal sections: %w", err)
		}
		sectionsJSON = string(raw)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO content (
            content_id, status, hypothesis_id, content_format, script_language,
            planned_post_date, sections_json, voice_id, character_ref,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		status,
		nullableString(params.HypothesisID),
		format,
		nullableString(params.ScriptLanguage),
		nullableString(params.PlannedPostDate),
		sectionsJSON,
		nullableString(params.VoiceID),
		nullableString(params.CharacterRef),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert content: %w", err)
	}

	return s.GetContent(ctx, id)
}

// GetContent fetches a content item by identifier. Returns nil when absent.
func (s *Store) GetContent(ctx context.Context, id string) (*Content, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content WHERE content_id = ?`, id)
	item, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

// TransitionContent moves a content item from one status to another.
//
// Transitions absent from the transition table are rejected before any
// database statement is issued. The UPDATE itself is guarded by the source
// status, so a lost race yields zero affected rows rather than an error;
// callers must check the returned count.
func (s *Store) TransitionContent(ctx context.Context, id string, from, to ContentStatus) (int64, error) {
	if !CanTransition(from, to) {
		return 0, fmt.Errorf("%w: content %s -> %s", ErrInvalidTransition, from, to)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE content SET status = ?, updated_at = ? WHERE content_id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return 0, fmt.Errorf("transition content: %w", err)
	}
	return res.RowsAffected()
}

// PollContent returns up to limit items in the given status, oldest first.
func (s *Store) PollContent(ctx context.Context, status ContentStatus, limit int) ([]*Content, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+contentColumns+` FROM content WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		status,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("poll content: %w", err)
	}
	defer rows.Close()

	var items []*Content
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListContent returns content filtered by status set (or everything when
// no status is provided), ordered by creation time.
func (s *Store) ListContent(ctx context.Context, statuses ...ContentStatus) ([]*Content, error) {
	baseQuery := `SELECT ` + contentColumns + ` FROM content`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var items []*Content
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FinishProduction writes the final artifact references and timing onto a
// producing item and transitions it to ready in one guarded statement.
func (s *Store) FinishProduction(ctx context.Context, id, videoRef, folderRef string, elapsed time.Duration) (int64, error) {
	if !CanTransition(ContentProducing, ContentReady) {
		return 0, fmt.Errorf("%w: content %s -> %s", ErrInvalidTransition, ContentProducing, ContentReady)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE content
         SET status = ?, video_artifact_ref = ?, drive_folder_ref = ?,
             processing_time_sec = ?, error_message = NULL, updated_at = ?
         WHERE content_id = ? AND status = ?`,
		ContentReady,
		nullableString(videoRef),
		nullableString(folderRef),
		elapsed.Seconds(),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		ContentProducing,
	)
	if err != nil {
		return 0, fmt.Errorf("finish production: %w", err)
	}
	return res.RowsAffected()
}

// FailProduction records the failure message and timing and transitions a
// producing item to error in one guarded statement.
func (s *Store) FailProduction(ctx context.Context, id, message string, elapsed time.Duration) (int64, error) {
	if !CanTransition(ContentProducing, ContentError) {
		return 0, fmt.Errorf("%w: content %s -> %s", ErrInvalidTransition, ContentProducing, ContentError)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE content
         SET status = ?, error_message = ?, processing_time_sec = ?, updated_at = ?
         WHERE content_id = ? AND status = ?`,
		ContentError,
		nullableString(strings.TrimSpace(message)),
		elapsed.Seconds(),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		ContentProducing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail production: %w", err)
	}
	return res.RowsAffected()
}

// ContentStats returns a count of content grouped by status.
func (s *Store) ContentStats(ctx context.Context) (map[ContentStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM content GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("content stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ContentStatus]int)
	for rows.Next() {
		var status ContentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates content state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.ContentStats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case ContentPlanned:
			health.Planned += count
		case ContentProducing:
			health.Producing += count
		case ContentReady:
			health.Ready += count
		case ContentError:
			health.Errored += count
		}
	}
	return health, nil
}

const contentColumns = "content_id, status, hypothesis_id, content_format, script_language, planned_post_date, sections_json, voice_id, character_ref, video_artifact_ref, drive_folder_ref, error_message, processing_time_sec, created_at, updated_at"

func scanContent(scanner interface{ Scan(dest ...any) error }) (*Content, error) {
	var (
		contentID      string
		statusStr      string
		hypothesisID   sql.NullString
		contentFormat  sql.NullString
		scriptLanguage sql.NullString
		plannedDate    sql.NullString
		sectionsRaw    sql.NullString
		voiceID        sql.NullString
		characterRef   sql.NullString
		videoRef       sql.NullString
		folderRef      sql.NullString
		errorMessage   sql.NullString
		processingTime sql.NullFloat64
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&contentID,
		&statusStr,
		&hypothesisID,
		&contentFormat,
		&scriptLanguage,
		&plannedDate,
		&sectionsRaw,
		&voiceID,
		&characterRef,
		&videoRef,
		&folderRef,
		&errorMessage,
		&processingTime,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Content{
		ContentID:         contentID,
		Status:            ContentStatus(statusStr),
		HypothesisID:      hypothesisID.String,
		ContentFormat:     contentFormat.String,
		ScriptLanguage:    scriptLanguage.String,
		PlannedPostDate:   plannedDate.String,
		VoiceID:           voiceID.String,
		CharacterRef:      characterRef.String,
		VideoArtifactRef:  videoRef.String,
		DriveFolderRef:    folderRef.String,
		ErrorMessage:      errorMessage.String,
		ProcessingTimeSec: processingTime.Float64,
	}
	if sectionsRaw.Valid && sectionsRaw.String != "" {
		if err := json.Unmarshal([]byte(sectionsRaw.String), &item.Sections); err != nil {
			return nil, fmt.Errorf("decode sections: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
