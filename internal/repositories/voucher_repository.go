package repositories

import (
	"bbpayment/internal/models/db_models"
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"strings"
	"time"
)

type IVoucherRepository interface {
	Create(ctx context.Context, v *db_models.Voucher) error
	Save(ctx context.Context, v *db_models.Voucher) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Voucher, error)
	GetByCode(ctx context.Context, code string) (*db_models.Voucher, error)
	List(ctx context.Context) ([]db_models.Voucher, error)
	UsedCount(ctx context.Context, voucherID uuid.UUID, userID string) (int, error)

	// IncrementUse bumps the per-user counter only while it is below limit
	// (limit <= 0 means uncapped). Returns false when the cap was already reached.
	IncrementUse(ctx context.Context, voucherID uuid.UUID, userID string, limit int) (bool, error)
}

type VoucherRepository struct {
	db *gorm.DB
}

func NewVoucherRepository(db *gorm.DB) IVoucherRepository {
	return &VoucherRepository{db: db}
}

func NormalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *VoucherRepository) Create(ctx context.Context, v *db_models.Voucher) error {
	v.Code = NormalizeVoucherCode(v.Code)
	err := conn(ctx, r.db).Create(v).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *VoucherRepository) Save(ctx context.Context, v *db_models.Voucher) error {
	v.Code = NormalizeVoucherCode(v.Code)
	err := conn(ctx, r.db).Save(v).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *VoucherRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := conn(ctx, r.db).Delete(&db_models.Voucher{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

func (r *VoucherRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Voucher, error) {
	var v db_models.Voucher
	if err := conn(ctx, r.db).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *VoucherRepository) GetByCode(ctx context.Context, code string) (*db_models.Voucher, error) {
	var v db_models.Voucher
	if err := conn(ctx, r.db).First(&v, "code = ?", NormalizeVoucherCode(code)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *VoucherRepository) List(ctx context.Context) ([]db_models.Voucher, error) {
	var out []db_models.Voucher
	err := conn(ctx, r.db).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (r *VoucherRepository) UsedCount(ctx context.Context, voucherID uuid.UUID, userID string) (int, error) {
	var red db_models.VoucherRedemption
	err := conn(ctx, r.db).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		First(&red).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return red.UsedCount, err
}

func (r *VoucherRepository) IncrementUse(ctx context.Context, voucherID uuid.UUID, userID string, limit int) (bool, error) {
	db := conn(ctx, r.db)

	seed := db_models.VoucherRedemption{VoucherID: voucherID, UserID: userID}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voucher_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return false, err
	}

	q := db.Model(&db_models.VoucherRedemption{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID)
	if limit > 0 {
		q = q.Where("used_count < ?", limit)
	}
	res := q.Updates(map[string]interface{}{
		"used_count": gorm.Expr("used_count + 1"),
		"updated_at": time.Now().UnixMilli(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
