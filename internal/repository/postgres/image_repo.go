package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"billscope/internal/domain"
	"billscope/internal/port"
)

const imageColumns = `id, bill_id, bucket, storage_key, content_type, size_bytes,
	uploaded_at, scheduled_deletion_at, deleted, deleted_at`

type imageRepo struct {
	db *sqlx.DB
}

// NewImageRepo creates a new PostgreSQL-backed ImageRepository.
func NewImageRepo(db *sqlx.DB) port.ImageRepository {
	return &imageRepo{db: db}
}

func (r *imageRepo) Create(ctx context.Context, img *domain.ImageRef) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO bill_images (
		id, bill_id, bucket, storage_key, content_type, size_bytes,
		uploaded_at, scheduled_deletion_at, deleted, deleted_at
	) VALUES (
		:id, :bill_id, :bucket, :storage_key, :content_type, :size_bytes,
		:uploaded_at, :scheduled_deletion_at, :deleted, :deleted_at
	)`, img)
	if err != nil {
		return fmt.Errorf("imageRepo.Create: %w", err)
	}
	return nil
}

func (r *imageRepo) GetByBillID(ctx context.Context, billID uuid.UUID) (*domain.ImageRef, error) {
	var img domain.ImageRef
	err := r.db.GetContext(ctx, &img, "SELECT "+imageColumns+" FROM bill_images WHERE bill_id = $1", billID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("imageRepo.GetByBillID: %w", err)
	}
	return &img, nil
}

// ClaimDueForDeletion leases due rows by pushing deletion_claimed_until
// forward. SKIP LOCKED keeps concurrent sweepers off each other's rows.
func (r *imageRepo) ClaimDueForDeletion(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.ImageRef, error) {
	var imgs []domain.ImageRef
	err := r.db.SelectContext(ctx, &imgs, `UPDATE bill_images SET deletion_claimed_until = $2
		WHERE id IN (
			SELECT id FROM bill_images
			WHERE NOT deleted
			  AND scheduled_deletion_at <= $1
			  AND (deletion_claimed_until IS NULL OR deletion_claimed_until <= $1)
			ORDER BY scheduled_deletion_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+imageColumns,
		now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("imageRepo.ClaimDueForDeletion: %w", err)
	}
	return imgs, nil
}

func (r *imageRepo) MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bill_images SET deleted = TRUE, deleted_at = $1, deletion_claimed_until = NULL
		 WHERE id = $2 AND NOT deleted`, at, id)
	if err != nil {
		return false, fmt.Errorf("imageRepo.MarkDeleted: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
