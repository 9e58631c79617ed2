package repositories

import (
	"bbpayment/internal/models/db_models"
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"time"
)

type IOutboxRepository interface {
	Insert(ctx context.Context, evt *db_models.OutboxEvent) error

	// ClaimDue leases up to limit unpublished, unparked events whose next attempt is due by
	// pushing their next attempt to leaseUntil. Must run inside a short transaction; concurrent
	// relays skip rows locked by each other and see leased rows as not due.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]db_models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, next time.Time, parked bool, lastErr string) error

	GetByID(ctx context.Context, id uuid.UUID) (*db_models.OutboxEvent, error)
	List(ctx context.Context, failedOnly bool, limit int) ([]db_models.OutboxEvent, error)
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// Notify signals OutboxChannel; on postgres the signal is delivered when the surrounding
	// transaction commits. Other drivers rely on polling alone.
	Notify(ctx context.Context) error
}

// OutboxChannel is the LISTEN/NOTIFY channel relays wait on.
const OutboxChannel = "outbox_events"

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) IOutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Insert(ctx context.Context, evt *db_models.OutboxEvent) error {
	return conn(ctx, r.db).Create(evt).Error
}

func (r *OutboxRepository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]db_models.OutboxEvent, error) {
	var out []db_models.OutboxEvent
	db := conn(ctx, r.db)
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL AND parked = ? AND next_attempt_at <= ?", false, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil || len(out) == 0 {
		return out, err
	}

	ids := make([]uuid.UUID, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	err = db.Model(&db_models.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"next_attempt_at": leaseUntil,
			"updated_at":      time.Now().UnixMilli(),
		}).Error
	return out, err
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	return conn(ctx, r.db).Model(&db_models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"published_at": at,
			"last_error":   "",
			"updated_at":   time.Now().UnixMilli(),
		}).Error
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, next time.Time, parked bool, lastErr string) error {
	return conn(ctx, r.db).Model(&db_models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":        attempts,
			"next_attempt_at": next,
			"parked":          parked,
			"last_error":      lastErr,
			"updated_at":      time.Now().UnixMilli(),
		}).Error
}

func (r *OutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.OutboxEvent, error) {
	var evt db_models.OutboxEvent
	if err := conn(ctx, r.db).First(&evt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

func (r *OutboxRepository) List(ctx context.Context, failedOnly bool, limit int) ([]db_models.OutboxEvent, error) {
	var out []db_models.OutboxEvent
	q := conn(ctx, r.db).Where("published_at IS NULL")
	if failedOnly {
		q = q.Where("attempts > 0 OR parked = ?", true)
	}
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Requeue resets a parked or failing event so the relay picks it up on its next pass.
func (r *OutboxRepository) Requeue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&db_models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		Updates(map[string]interface{}{
			"attempts":        0,
			"parked":          false,
			"next_attempt_at": now,
			"updated_at":      time.Now().UnixMilli(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *OutboxRepository) Notify(ctx context.Context) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return conn(ctx, r.db).Exec("SELECT pg_notify(?, '')", OutboxChannel).Error
}
