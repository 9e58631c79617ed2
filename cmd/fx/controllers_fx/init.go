package controllers_fx

import (
	"bbpayment/internal/api/controllers"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(controllers.NewPaymentController),
	fx.Provide(controllers.NewCallbackController),
	fx.Provide(controllers.NewPricingController),
	fx.Provide(controllers.NewVoucherController),
	fx.Provide(controllers.NewSubscriptionController),
	fx.Provide(controllers.NewAdminController))
