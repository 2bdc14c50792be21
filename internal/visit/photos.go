package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const selectPhoto = `SELECT id, visit_id, image_key, caption, sort_order, uploaded_at FROM visit_photos`

// AddPhoto appends a photo to the end of a visit's gallery.
func (r *Repository) AddPhoto(ctx context.Context, visitID int64, key, caption string) (*Photo, error) {
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO visit_photos (visit_id, image_key, caption, sort_order)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(sort_order), -1) + 1 FROM visit_photos WHERE visit_id = ?))`,
		visitID, key, strings.TrimSpace(caption), visitID,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting photo: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.GetPhoto(ctx, visitID, id)
}

// GetPhoto returns a photo belonging to the visit.
func (r *Repository) GetPhoto(ctx context.Context, visitID, id int64) (*Photo, error) {
	var p Photo
	err := r.q.QueryRowContext(ctx, selectPhoto+` WHERE id = ? AND visit_id = ?`, id, visitID).Scan(
		&p.ID, &p.VisitID, &p.Key, &p.Caption, &p.SortOrder, &p.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying photo: %w", err)
	}
	return &p, nil
}

// ListPhotos returns a visit's photos in gallery order.
func (r *Repository) ListPhotos(ctx context.Context, visitID int64) (photos []*Photo, err error) {
	rows, err := r.q.QueryContext(ctx, selectPhoto+` WHERE visit_id = ? ORDER BY sort_order, uploaded_at, id`, visitID)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.VisitID, &p.Key, &p.Caption, &p.SortOrder, &p.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning photo: %w", err)
		}
		photos = append(photos, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating photos: %w", err)
	}

	return photos, nil
}

// UpdateCaption changes a photo's caption.
func (r *Repository) UpdateCaption(ctx context.Context, visitID, id int64, caption string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE visit_photos SET caption = ? WHERE id = ? AND visit_id = ?`,
		strings.TrimSpace(caption), id, visitID,
	)
	if err != nil {
		return fmt.Errorf("updating caption: %w", err)
	}
	return expectOne(result, ErrPhotoNotFound)
}

// DeletePhoto removes a photo and returns its storage key.
func (r *Repository) DeletePhoto(ctx context.Context, visitID, id int64) (string, error) {
	p, err := r.GetPhoto(ctx, visitID, id)
	if err != nil {
		return "", err
	}

	result, err := r.q.ExecContext(ctx, `DELETE FROM visit_photos WHERE id = ? AND visit_id = ?`, id, visitID)
	if err != nil {
		return "", fmt.Errorf("deleting photo: %w", err)
	}
	if err := expectOne(result, ErrPhotoNotFound); err != nil {
		return "", err
	}
	return p.Key, nil
}

// PhotoCounts returns the number of photos per visit in a project.
func (r *Repository) PhotoCounts(ctx context.Context, projectID int64) (counts map[int64]int, err error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT p.visit_id, COUNT(*) FROM visit_photos p JOIN visits v ON v.id = p.visit_id
		 WHERE v.project_id = ? GROUP BY p.visit_id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("counting photos: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	counts = make(map[int64]int)
	for rows.Next() {
		var visitID int64
		var n int
		if err := rows.Scan(&visitID, &n); err != nil {
			return nil, fmt.Errorf("scanning photo count: %w", err)
		}
		counts[visitID] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating photo counts: %w", err)
	}

	return counts, nil
}
