package payment_service_fx

import (
	"bbpayment/internal/services"
	"go.uber.org/fx"
)

var Module = fx.Provide(
	services.NewCurrencyService,
	services.NewTaxRateProvider,
	services.NewPlanService,
	services.NewCampaignService,
	services.NewVoucherService,
	services.NewPricingService,
	services.NewSubscriptionService,
	services.NewTransactionService,
	services.NewExpiryService,
	services.NewPaymentService,
	services.NewCallbackService,
	services.NewRenewalService,
	services.NewReconcileService,
)
