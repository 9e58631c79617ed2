package repositories

import (
	"bbpayment/internal/models/db_models"
	"context"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

type IReconciliationRepository interface {
	Create(ctx context.Context, issue *db_models.ReconciliationIssue) error
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]db_models.ReconciliationIssue, error)
	Resolve(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error)
	CountUnresolved(ctx context.Context) (int64, error)
}

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) IReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) Create(ctx context.Context, issue *db_models.ReconciliationIssue) error {
	return conn(ctx, r.db).Create(issue).Error
}

func (r *ReconciliationRepository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]db_models.ReconciliationIssue, error) {
	var out []db_models.ReconciliationIssue
	q := conn(ctx, r.db)
	if unresolvedOnly {
		q = q.Where("resolved = ?", false)
	}
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *ReconciliationRepository) Resolve(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&db_models.ReconciliationIssue{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at,
			"note":        note,
			"updated_at":  time.Now().UnixMilli(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *ReconciliationRepository) CountUnresolved(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&db_models.ReconciliationIssue{}).Where("resolved = ?", false).Count(&n).Error
	return n, err
}
