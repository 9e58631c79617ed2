package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/request_models"
	"bbpayment/internal/models/response_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// User-facing reasons a voucher gives no discount.
const (
	reasonVoucherNotFound  = "Voucher not found"
	reasonVoucherInactive  = "Voucher is no longer active"
	reasonVoucherNotYet    = "Voucher is not valid yet"
	reasonVoucherExpired   = "Voucher has expired"
	reasonVoucherWrongUser = "Voucher is not available for this account"
	reasonVoucherUsedUp    = "Voucher usage limit reached"
)

type VoucherService interface {
	Create(ctx context.Context, req request_models.VoucherRequest) (*db_models.Voucher, error)
	Update(ctx context.Context, id uuid.UUID, req request_models.VoucherRequest) (*db_models.Voucher, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*db_models.Voucher, error)
	List(ctx context.Context) ([]db_models.Voucher, error)

	Check(ctx context.Context, code, userID string) (*response_models.VoucherCheckResponse, error)
	ListAvailable(ctx context.Context, userID string) ([]response_models.VoucherCheckResponse, error)

	// Evaluate returns the voucher when userID may use it right now, otherwise nil and the reason.
	Evaluate(ctx context.Context, code, userID string) (*db_models.Voucher, string, error)
	// Redeem records one use. Call it inside the settlement transaction.
	Redeem(ctx context.Context, code, userID string) error
}

type voucherService struct {
	repo  repositories.IVoucherRepository
	clock utils.Clock
	log   *zap.Logger
}

func NewVoucherService(repo repositories.IVoucherRepository, clock utils.Clock, log *zap.Logger) VoucherService {
	return &voucherService{repo: repo, clock: clock, log: log}
}

func (s *voucherService) Create(ctx context.Context, req request_models.VoucherRequest) (*db_models.Voucher, error) {
	v := &db_models.Voucher{Active: true}
	if err := applyVoucherRequest(v, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, v); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: voucher code %s already exists", utils.ErrConflict, v.Code)
		}
		return nil, dbError("create voucher", err)
	}
	return v, nil
}

func (s *voucherService) Update(ctx context.Context, id uuid.UUID, req request_models.VoucherRequest) (*db_models.Voucher, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyVoucherRequest(v, req); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, v); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: voucher code %s already exists", utils.ErrConflict, v.Code)
		}
		return nil, dbError("update voucher", err)
	}
	return v, nil
}

func applyVoucherRequest(v *db_models.Voucher, req request_models.VoucherRequest) error {
	code := repositories.NormalizeVoucherCode(req.Code)
	if code == "" {
		return utils.Validationf("voucher code is required")
	}
	typ := db_models.VoucherType(req.Type)
	switch typ {
	case db_models.VoucherPercentage:
		if !req.Value.IsPositive() || req.Value.GreaterThan(hundred) {
			return utils.Validationf("percentage voucher value must be in (0, 100]")
		}
	case db_models.VoucherFixedAmount:
		if !req.Value.IsPositive() {
			return utils.Validationf("fixed-amount voucher value must be positive")
		}
	default:
		return utils.Validationf("unknown voucher type %q", req.Type)
	}
	if req.StartAt != nil && req.EndAt != nil && !req.StartAt.Before(*req.EndAt) {
		return utils.Validationf("start_at must be before end_at")
	}
	if !req.Permanent && req.MaxUsePerUser < 1 {
		return utils.Validationf("max_use_per_user must be at least 1 for non-permanent vouchers")
	}

	v.Code = code
	v.Type = typ
	v.Value = req.Value
	v.UserSpecificID = req.UserSpecificID
	v.Permanent = req.Permanent
	v.StartAt = req.StartAt
	v.EndAt = req.EndAt
	v.MaxUsePerUser = req.MaxUsePerUser
	if req.Active != nil {
		v.Active = *req.Active
	}
	return nil
}

func (s *voucherService) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return dbError("delete voucher", err)
	}
	if !ok {
		return utils.ErrVoucherNotFound
	}
	return nil
}

func (s *voucherService) Get(ctx context.Context, id uuid.UUID) (*db_models.Voucher, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, dbError("get voucher", err)
	}
	if v == nil {
		return nil, utils.ErrVoucherNotFound
	}
	return v, nil
}

func (s *voucherService) List(ctx context.Context) ([]db_models.Voucher, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, dbError("list vouchers", err)
	}
	return out, nil
}

func (s *voucherService) Check(ctx context.Context, code, userID string) (*response_models.VoucherCheckResponse, error) {
	v, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, dbError("get voucher", err)
	}
	if v == nil {
		return &response_models.VoucherCheckResponse{
			Code:   repositories.NormalizeVoucherCode(code),
			Reason: reasonVoucherNotFound,
		}, nil
	}
	used, err := s.repo.UsedCount(ctx, v.ID, userID)
	if err != nil {
		return nil, dbError("voucher used count", err)
	}
	res := voucherCheck(v, used)
	res.Reason = s.rejection(v, userID, used)
	res.Usable = res.Reason == ""
	return res, nil
}

func (s *voucherService) ListAvailable(ctx context.Context, userID string) ([]response_models.VoucherCheckResponse, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, dbError("list vouchers", err)
	}
	out := make([]response_models.VoucherCheckResponse, 0)
	for i := range all {
		v := &all[i]
		if !v.Active || !v.AllowsUser(userID) || !v.InWindow(s.clock.Now()) {
			continue
		}
		used, err := s.repo.UsedCount(ctx, v.ID, userID)
		if err != nil {
			return nil, dbError("voucher used count", err)
		}
		if s.rejection(v, userID, used) != "" {
			continue
		}
		res := voucherCheck(v, used)
		res.Usable = true
		out = append(out, *res)
	}
	return out, nil
}

func (s *voucherService) Evaluate(ctx context.Context, code, userID string) (*db_models.Voucher, string, error) {
	v, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, "", dbError("get voucher", err)
	}
	if v == nil {
		return nil, reasonVoucherNotFound, nil
	}
	used, err := s.repo.UsedCount(ctx, v.ID, userID)
	if err != nil {
		return nil, "", dbError("voucher used count", err)
	}
	if reason := s.rejection(v, userID, used); reason != "" {
		return nil, reason, nil
	}
	return v, "", nil
}

func (s *voucherService) Redeem(ctx context.Context, code, userID string) error {
	v, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return dbError("get voucher", err)
	}
	if v == nil {
		return utils.ErrVoucherNotFound
	}
	limit := v.MaxUsePerUser
	if v.Permanent {
		limit = 0
	}
	ok, err := s.repo.IncrementUse(ctx, v.ID, userID, limit)
	if err != nil {
		return dbError("redeem voucher", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", utils.ErrVoucherExhausted, v.Code)
	}
	return nil
}

// rejection returns the first reason v cannot be used by userID, or "".
func (s *voucherService) rejection(v *db_models.Voucher, userID string, used int) string {
	now := s.clock.Now()
	switch {
	case !v.Active:
		return reasonVoucherInactive
	case !v.AllowsUser(userID):
		return reasonVoucherWrongUser
	case !v.InWindow(now):
		if v.StartAt != nil && now.Before(*v.StartAt) {
			return reasonVoucherNotYet
		}
		return reasonVoucherExpired
	case !v.Permanent && v.MaxUsePerUser > 0 && used >= v.MaxUsePerUser:
		return reasonVoucherUsedUp
	}
	return ""
}

func voucherCheck(v *db_models.Voucher, used int) *response_models.VoucherCheckResponse {
	res := &response_models.VoucherCheckResponse{
		Code:  v.Code,
		Type:  string(v.Type),
		Value: v.Value,
	}
	if !v.Permanent && v.MaxUsePerUser > 0 {
		remaining := v.MaxUsePerUser - used
		if remaining < 0 {
			remaining = 0
		}
		res.RemainingUses = &remaining
	}
	return res
}
