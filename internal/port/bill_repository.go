package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"billscope/internal/domain"
)

// BillRepository persists BillAnalysis aggregates.
type BillRepository interface {
	Create(ctx context.Context, bill *domain.BillAnalysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BillAnalysis, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.BillAnalysis, error)
	// Save writes the mutable pipeline fields, but only if the stored state
	// still equals expected. A mismatch returns domain.ErrInvalidStateTransition.
	Save(ctx context.Context, bill *domain.BillAnalysis, expected domain.ProcessingState) error
	UpdateFeedback(ctx context.Context, id uuid.UUID, feedback *domain.Feedback) error
	UpdateInteraction(ctx context.Context, id uuid.UUID, interaction domain.Interaction) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ClearExpiredText nulls raw text past its retention deadline and returns
	// the number of rows changed.
	ClearExpiredText(ctx context.Context, now time.Time, limit int) (int64, error)
}

// ImageRepository persists bill image references and their deletion schedule.
type ImageRepository interface {
	Create(ctx context.Context, img *domain.ImageRef) error
	GetByBillID(ctx context.Context, billID uuid.UUID) (*domain.ImageRef, error)
	// ClaimDueForDeletion leases up to limit undeleted images whose deadline
	// has passed so that concurrent sweeps never pick the same row.
	ClaimDueForDeletion(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.ImageRef, error)
	// MarkDeleted flags the image deleted. It reports false when the image
	// was already marked.
	MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}
