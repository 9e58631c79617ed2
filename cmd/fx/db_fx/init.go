package db_fx

import (
	"bbpayment/internal/config"
	"bbpayment/internal/infra"
	"bbpayment/internal/repositories"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Provide(
	provideDB,
	repositories.NewTxManager,
	repositories.NewTransactionRepository,
	repositories.NewSubscriptionRepository,
	repositories.NewPlanRepository,
	repositories.NewCampaignRepository,
	repositories.NewVoucherRepository,
	repositories.NewOutboxRepository,
	repositories.NewReconciliationRepository,
)

func provideDB(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := infra.OpenDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		infra.CloseDatabase(db, log)
	}))
	return db, nil
}
