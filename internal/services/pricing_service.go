package services

import (
	"bbpayment/internal/models/db_models"
	"bbpayment/internal/models/response_models"
	"bbpayment/internal/repositories"
	"bbpayment/pkg/utils"
	"context"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"strings"
	"time"
)

type PricingInput struct {
	PlanID      uuid.UUID
	Cycle       db_models.BillingCycle
	Currency    string
	UserID      string
	IPAddress   string
	VoucherCode string
}

// PricingService computes a price in fixed order: cycle base, best campaign, voucher, tax.
// Each discount applies to what the previous layer left; tax applies to the discounted price.
type PricingService interface {
	Calculate(ctx context.Context, in PricingInput) (*response_models.PricingBreakdown, error)
}

type pricingService struct {
	planRepo     repositories.IPlanRepository
	campaignRepo repositories.ICampaignRepository
	vouchers     VoucherService
	tax          TaxRateProvider
	currency     CurrencyService
	clock        utils.Clock
	log          *zap.Logger
}

func NewPricingService(
	planRepo repositories.IPlanRepository,
	campaignRepo repositories.ICampaignRepository,
	vouchers VoucherService,
	tax TaxRateProvider,
	currency CurrencyService,
	clock utils.Clock,
	log *zap.Logger,
) PricingService {
	return &pricingService{
		planRepo:     planRepo,
		campaignRepo: campaignRepo,
		vouchers:     vouchers,
		tax:          tax,
		currency:     currency,
		clock:        clock,
		log:          log,
	}
}

func (p *pricingService) Calculate(ctx context.Context, in PricingInput) (*response_models.PricingBreakdown, error) {
	currency, err := p.currency.Normalize(in.Currency)
	if err != nil {
		return nil, err
	}

	plan, err := p.planRepo.GetPlanByID(ctx, in.PlanID)
	if err != nil {
		return nil, dbError("get plan", err)
	}
	if plan == nil || !plan.IsActive {
		return nil, utils.ErrPlanNotFound
	}
	planCurrency, err := p.currency.Normalize(plan.Currency)
	if err != nil {
		return nil, err
	}
	rate, err := p.currency.Rate(planCurrency, currency)
	if err != nil {
		return nil, err
	}
	convert := func(amount decimal.Decimal) decimal.Decimal {
		return p.currency.Round(amount.Mul(rate), currency)
	}
	now := p.clock.Now()

	b := &response_models.PricingBreakdown{
		PlanID:       plan.ID,
		BillingCycle: string(in.Cycle),
		Currency:     currency,
		PlanCurrency: planCurrency,
		ExchangeRate: rate,
	}

	switch in.Cycle {
	case db_models.CycleMonthly:
		b.Base = convert(plan.MonthlyPrice)
	case db_models.CycleAnnual:
		gross := plan.MonthlyPrice.Mul(decimal.NewFromInt(12))
		cut := gross.Mul(clampPercent(plan.AnnualDiscountPercent)).Div(hundred).Add(plan.AnnualDiscountAmount)
		cut = decimal.Min(cut, gross)
		b.CycleDiscount = response_models.DiscountLayer{
			Rate:   plan.AnnualDiscountPercent,
			Amount: convert(cut),
			Source: "annual",
		}
		b.Base = decimal.Max(convert(gross).Sub(b.CycleDiscount.Amount), decimal.Zero)
	default:
		return nil, utils.Validationf("unsupported billing cycle %q", in.Cycle)
	}
	price := b.Base

	campaigns, err := p.campaignRepo.ListActiveForPlan(ctx, plan.ID, now)
	if err != nil {
		return nil, dbError("list campaigns", err)
	}
	if best, cut := p.bestCampaign(campaigns, price, currency, now); best != nil {
		id := best.ID
		b.CampaignID = &id
		b.CampaignDiscount = response_models.DiscountLayer{
			Rate:   best.DiscountPercent,
			Amount: cut,
			Source: best.Name,
		}
		price = price.Sub(cut)
	}

	if code := strings.TrimSpace(in.VoucherCode); code != "" {
		v, reason, err := p.vouchers.Evaluate(ctx, code, in.UserID)
		if err != nil {
			return nil, err
		}
		if v == nil {
			// A bad voucher never blocks the payment; it just gives no discount.
			p.log.Debug("voucher ignored", zap.String("code", code), zap.String("user_id", in.UserID), zap.String("reason", reason))
			b.VoucherNote = reason
		} else {
			layer := response_models.DiscountLayer{Source: v.Code}
			switch v.Type {
			case db_models.VoucherPercentage:
				layer.Rate = v.Value
				layer.Amount = p.percentOf(price, v.Value, currency)
			case db_models.VoucherFixedAmount:
				layer.Amount = decimal.Min(convert(v.Value), price)
			}
			b.VoucherDiscount = layer
			b.VoucherCode = v.Code
			price = price.Sub(layer.Amount)
		}
	}

	b.DiscountedPrice = price
	b.TotalDiscount = b.Base.Sub(price)

	taxRate, err := p.tax.RateFor(ctx, in.IPAddress)
	if err != nil {
		return nil, err
	}
	b.TaxRate = clampPercent(taxRate)
	b.Tax = p.percentOf(price, b.TaxRate, currency)
	b.FinalPrice = p.currency.Round(price.Add(b.Tax), currency)
	b.FinalPriceMinor = p.currency.ToMinor(b.FinalPrice, currency)
	return b, nil
}

// bestCampaign picks the campaign leaving the lowest price. Ties go to the most
// recently created one, then to the larger id, so the choice is stable.
func (p *pricingService) bestCampaign(campaigns []db_models.DiscountCampaign, price decimal.Decimal, currency string, now time.Time) (*db_models.DiscountCampaign, decimal.Decimal) {
	var best *db_models.DiscountCampaign
	var bestCut decimal.Decimal
	for i := range campaigns {
		c := &campaigns[i]
		if !c.AppliesAt(now) {
			continue
		}
		cut := p.percentOf(price, c.DiscountPercent, currency)
		switch {
		case best == nil, cut.GreaterThan(bestCut):
		case cut.Equal(bestCut) && newerCampaign(c, best):
		default:
			continue
		}
		best, bestCut = c, cut
	}
	return best, bestCut
}

func newerCampaign(a, b *db_models.DiscountCampaign) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID.String() > b.ID.String()
}

func (p *pricingService) percentOf(amount, percent decimal.Decimal, currency string) decimal.Decimal {
	return p.currency.Round(amount.Mul(clampPercent(percent)).Div(hundred), currency)
}

func clampPercent(d decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(d, decimal.Zero), hundred)
}
