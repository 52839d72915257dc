package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewPublicationParams carries the publishing-stage attributes for a new row.
type NewPublicationParams struct {
	ContentID    string
	AccountID    string
	Platform     string
	MeasureAfter *time.Time
}

// NewPublication inserts a scheduled publication for a content item.
func (s *Store) NewPublication(ctx context.Context, params NewPublicationParams) (*Publication, error) {
	if strings.TrimSpace(params.ContentID) == "" {
		return nil, errors.New("content id required")
	}
	if strings.TrimSpace(params.AccountID) == "" {
		return nil, errors.New("account id required")
	}
	if strings.TrimSpace(params.Platform) == "" {
		return nil, errors.New("platform required")
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO publications (
            content_id, account_id, platform, status, measure_after, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.ContentID,
		params.AccountID,
		params.Platform,
		PublicationScheduled,
		nullableTime(params.MeasureAfter),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert publication: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetPublication(ctx, id)
}

// GetPublication fetches a publication by identifier. Returns nil when absent.
func (s *Store) GetPublication(ctx context.Context, id int64) (*Publication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+publicationColumns+` FROM publications WHERE id = ?`, id)
	pub, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publication: %w", err)
	}
	return pub, nil
}

// TransitionPublication moves a publication forward through its state machine.
// Illegal transitions are rejected before any database statement; the UPDATE
// is guarded by the source status so lost races surface as zero affected rows.
func (s *Store) TransitionPublication(ctx context.Context, id int64, from, to PublicationStatus) (int64, error) {
	if !CanTransitionPublication(from, to) {
		return 0, fmt.Errorf("%w: publication %s -> %s", ErrInvalidTransition, from, to)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE publications SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return 0, fmt.Errorf("transition publication: %w", err)
	}
	return res.RowsAffected()
}

// MarkPosted records the platform post id and timestamp while transitioning
// scheduled -> posted in one guarded statement.
func (s *Store) MarkPosted(ctx context.Context, id int64, platformPostID string, postedAt time.Time) (int64, error) {
	if !CanTransitionPublication(PublicationScheduled, PublicationPosted) {
		return 0, fmt.Errorf("%w: publication %s -> %s", ErrInvalidTransition, PublicationScheduled, PublicationPosted)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE publications
         SET status = ?, platform_post_id = ?, posted_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		PublicationPosted,
		nullableString(platformPostID),
		postedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		PublicationScheduled,
	)
	if err != nil {
		return 0, fmt.Errorf("mark posted: %w", err)
	}
	return res.RowsAffected()
}

// PollPublications returns up to limit publications in the given status,
// oldest first.
func (s *Store) PollPublications(ctx context.Context, status PublicationStatus, limit int) ([]*Publication, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+publicationColumns+` FROM publications WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		status,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("poll publications: %w", err)
	}
	defer rows.Close()

	var pubs []*Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

// PublicationsForContent returns every publication row for a content item.
func (s *Store) PublicationsForContent(ctx context.Context, contentID string) ([]*Publication, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+publicationColumns+` FROM publications WHERE content_id = ? ORDER BY created_at`,
		contentID,
	)
	if err != nil {
		return nil, fmt.Errorf("publications for content: %w", err)
	}
	defer rows.Close()

	var pubs []*Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

const publicationColumns = "id, content_id, account_id, platform, platform_post_id, status, posted_at, measure_after, created_at, updated_at"

func scanPublication(scanner interface{ Scan(dest ...any) error }) (*Publication, error) {
	var (
		id             int64
		contentID      string
		accountID      string
		platform       string
		platformPostID sql.NullString
		statusStr      string
		postedRaw      sql.NullString
		measureRaw     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&contentID,
		&accountID,
		&platform,
		&platformPostID,
		&statusStr,
		&postedRaw,
		&measureRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	pub := &Publication{
		ID:             id,
		ContentID:      contentID,
		AccountID:      accountID,
		Platform:       platform,
		PlatformPostID: platformPostID.String,
		Status:         PublicationStatus(statusStr),
	}
	if postedRaw.Valid {
		if posted, err := parseTimeString(postedRaw.String); err == nil {
			pub.PostedAt = &posted
		}
	}
	if measureRaw.Valid {
		if measure, err := parseTimeString(measureRaw.String); err == nil {
			pub.MeasureAfter = &measure
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		pub.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		pub.UpdatedAt = updated
	}
	return pub, nil
}
