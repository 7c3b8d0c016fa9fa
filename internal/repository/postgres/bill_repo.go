package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"billscope/internal/domain"
	"billscope/internal/port"
)

// billRow mirrors bill_analyses. Nested parts of the aggregate live in JSONB
// columns; raw text has its own column so it can be nulled independently.
type billRow struct {
	ID              uuid.UUID  `db:"id"`
	UserID          uuid.UUID  `db:"user_id"`
	ProcessingState string     `db:"processing_state"`
	LocationHint    string     `db:"location_hint"`
	ExtractedText   *string    `db:"extracted_text"`
	TextMeta        []byte     `db:"text_meta"`
	TextExpiresAt   *time.Time `db:"text_expires_at"`
	LineItems       []byte     `db:"line_items"`
	Summary         []byte     `db:"summary"`
	Region          []byte     `db:"region"`
	Narrative       []byte     `db:"narrative"`
	Warnings        []byte     `db:"warnings"`
	Feedback        []byte     `db:"feedback"`
	Interaction     []byte     `db:"interaction"`
	Processing      []byte     `db:"processing"`
	ParserModel     string     `db:"parser_model"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

type billRepo struct {
	db *sqlx.DB
}

// NewBillRepo creates a new PostgreSQL-backed BillRepository.
func NewBillRepo(db *sqlx.DB) port.BillRepository {
	return &billRepo{db: db}
}

func (r *billRepo) Create(ctx context.Context, bill *domain.BillAnalysis) error {
	row, err := toBillRow(bill)
	if err != nil {
		return fmt.Errorf("billRepo.Create: %w", err)
	}
	_, err = r.db.NamedExecContext(ctx, `INSERT INTO bill_analyses (
		id, user_id, processing_state, location_hint,
		extracted_text, text_meta, text_expires_at,
		line_items, summary, region, narrative, warnings,
		feedback, interaction, processing, parser_model,
		created_at, updated_at
	) VALUES (
		:id, :user_id, :processing_state, :location_hint,
		:extracted_text, :text_meta, :text_expires_at,
		:line_items, :summary, :region, :narrative, :warnings,
		:feedback, :interaction, :processing, :parser_model,
		:created_at, :updated_at
	)`, row)
	if err != nil {
		return fmt.Errorf("billRepo.Create: %w", err)
	}
	return nil
}

func (r *billRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BillAnalysis, error) {
	var row billRow
	err := r.db.GetContext(ctx, &row, "SELECT * FROM bill_analyses WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("billRepo.GetByID: %w", err)
	}
	bill, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("billRepo.GetByID: %w", err)
	}

	var img domain.ImageRef
	err = r.db.GetContext(ctx, &img, `SELECT `+imageColumns+` FROM bill_images WHERE bill_id = $1`, id)
	switch {
	case err == nil:
		bill.Image = &img
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("billRepo.GetByID: loading image: %w", err)
	}
	return bill, nil
}

func (r *billRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.BillAnalysis, error) {
	var rows []billRow
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM bill_analyses WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("billRepo.ListByUser: %w", err)
	}
	bills := make([]domain.BillAnalysis, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("billRepo.ListByUser: %w", err)
		}
		bills = append(bills, *b)
	}
	return bills, nil
}

func (r *billRepo) Save(ctx context.Context, bill *domain.BillAnalysis, expected domain.ProcessingState) error {
	row, err := toBillRow(bill)
	if err != nil {
		return fmt.Errorf("billRepo.Save: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `UPDATE bill_analyses SET
		processing_state = $1, extracted_text = $2, text_meta = $3, text_expires_at = $4,
		line_items = $5, summary = $6, region = $7, narrative = $8, warnings = $9,
		processing = $10, parser_model = $11, updated_at = $12
		WHERE id = $13 AND processing_state = $14`,
		row.ProcessingState, row.ExtractedText, row.TextMeta, row.TextExpiresAt,
		row.LineItems, row.Summary, row.Region, row.Narrative, row.Warnings,
		row.Processing, row.ParserModel, row.UpdatedAt,
		row.ID, string(expected))
	if err != nil {
		return fmt.Errorf("billRepo.Save: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.missOrConflict(ctx, bill.ID)
	}
	return nil
}

// missOrConflict explains a guarded update that touched no row.
func (r *billRepo) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM bill_analyses WHERE id = $1)", id); err != nil {
		return fmt.Errorf("billRepo.Save: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidStateTransition
}

func (r *billRepo) UpdateFeedback(ctx context.Context, id uuid.UUID, feedback *domain.Feedback) error {
	data, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("billRepo.UpdateFeedback: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE bill_analyses SET feedback = $1, updated_at = NOW() WHERE id = $2 AND feedback IS NULL",
		data, id)
	if err != nil {
		return fmt.Errorf("billRepo.UpdateFeedback: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: feedback already submitted", domain.ErrInvalidFeedback)
	}
	return nil
}

func (r *billRepo) UpdateInteraction(ctx context.Context, id uuid.UUID, interaction domain.Interaction) error {
	data, err := json.Marshal(interaction)
	if err != nil {
		return fmt.Errorf("billRepo.UpdateInteraction: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE bill_analyses SET interaction = $1, updated_at = NOW() WHERE id = $2",
		data, id)
	if err != nil {
		return fmt.Errorf("billRepo.UpdateInteraction: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *billRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM bill_analyses WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("billRepo.Delete: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *billRepo) ClearExpiredText(ctx context.Context, now time.Time, limit int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE bill_analyses SET extracted_text = NULL
		WHERE id IN (
			SELECT id FROM bill_analyses
			WHERE extracted_text IS NOT NULL AND text_expires_at <= $1
			ORDER BY text_expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("billRepo.ClearExpiredText: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func toBillRow(b *domain.BillAnalysis) (*billRow, error) {
	row := &billRow{
		ID:              b.ID,
		UserID:          b.UserID,
		ProcessingState: string(b.State),
		LocationHint:    b.LocationHint,
		ExtractedText:   b.Text.Text,
		TextExpiresAt:   b.Text.RetentionExpiresAt,
		ParserModel:     b.ParserModel,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	meta := b.Text
	meta.Text = nil

	lineItems := b.LineItems
	if lineItems == nil {
		lineItems = []domain.LineItem{}
	}
	warnings := b.Warnings
	if warnings == nil {
		warnings = []domain.Warning{}
	}

	var err error
	fields := []struct {
		dst *[]byte
		v   any
	}{
		{&row.TextMeta, meta},
		{&row.LineItems, lineItems},
		{&row.Summary, b.Summary},
		{&row.Region, b.Region},
		{&row.Warnings, warnings},
		{&row.Interaction, b.Interaction},
		{&row.Processing, b.Processing},
	}
	for _, f := range fields {
		if *f.dst, err = json.Marshal(f.v); err != nil {
			return nil, err
		}
	}
	if b.Narrative != nil {
		if row.Narrative, err = json.Marshal(b.Narrative); err != nil {
			return nil, err
		}
	}
	if b.Feedback != nil {
		if row.Feedback, err = json.Marshal(b.Feedback); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (row *billRow) toDomain() (*domain.BillAnalysis, error) {
	b := &domain.BillAnalysis{
		ID:           row.ID,
		UserID:       row.UserID,
		State:        domain.ProcessingState(row.ProcessingState),
		LocationHint: row.LocationHint,
		ParserModel:  row.ParserModel,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	fields := []struct {
		src []byte
		dst any
	}{
		{row.TextMeta, &b.Text},
		{row.LineItems, &b.LineItems},
		{row.Summary, &b.Summary},
		{row.Region, &b.Region},
		{row.Warnings, &b.Warnings},
		{row.Interaction, &b.Interaction},
		{row.Processing, &b.Processing},
		{row.Narrative, &b.Narrative},
		{row.Feedback, &b.Feedback},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("decoding bill %s: %w", row.ID, err)
		}
	}
	b.Text.Text = row.ExtractedText
	if b.LineItems == nil {
		b.LineItems = []domain.LineItem{}
	}
	if b.Warnings == nil {
		b.Warnings = []domain.Warning{}
	}
	return b, nil
}
