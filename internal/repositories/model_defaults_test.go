package repositories

import (
	"bbpayment/internal/models/db_models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"testing"
)

// insertedValues maps each column of a single-row dry-run INSERT to its bound value.
func insertedValues(t *testing.T, stmt *gorm.Statement) map[string]interface{} {
	t.Helper()
	c, ok := stmt.Clauses["VALUES"]
	require.True(t, ok, "statement has no VALUES clause: %s", stmt.SQL.String())
	values, ok := c.Expression.(clause.Values)
	require.True(t, ok)
	require.Len(t, values.Values, 1)

	out := make(map[string]interface{}, len(values.Columns))
	for i, col := range values.Columns {
		out[col.Name] = values.Values[0][i]
	}
	return out
}

func TestCreateInactiveVoucherStaysInactive(t *testing.T) {
	v := &db_models.Voucher{
		Code:      "SPRING",
		Type:      db_models.VoucherPercentage,
		Value:     decimal.NewFromInt(10),
		Permanent: true,
		Active:    false,
	}

	stmt := dryRunDB(t).Create(v).Statement
	cols := insertedValues(t, stmt)

	assert.Equal(t, false, cols["active"])
	assert.Equal(t, 0, cols["max_use_per_user"])
}

func TestCreateInactivePlanStaysInactive(t *testing.T) {
	p := &db_models.SubscriptionPlan{
		Code:         "legacy",
		Name:         "Legacy",
		MonthlyPrice: decimal.NewFromInt(5),
		Currency:     "USD",
		IsActive:     false,
	}

	cols := insertedValues(t, dryRunDB(t).Create(p).Statement)

	assert.Equal(t, false, cols["is_active"])
}

func TestCreateSubscriptionWithoutAutoRenew(t *testing.T) {
	sub := &db_models.UserSubscription{
		UserID:       "user-1",
		BillingCycle: db_models.CycleMonthly,
		Currency:     "USD",
		Active:       true,
		AutoRenew:    false,
	}

	cols := insertedValues(t, dryRunDB(t).Create(sub).Statement)

	assert.Equal(t, false, cols["auto_renew"])
	assert.Equal(t, true, cols["active"])
}
