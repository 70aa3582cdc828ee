package affiliate

import (
	"fmt"
	"sync/atomic"

	"storefront-core/pkg/config"
	"storefront-core/pkg/errutil"

	"github.com/shopspring/decimal"
)

// Policy is the admin-tunable part of the ledger.
type Policy struct {
	CommissionRate       decimal.Decimal `json:"commission_rate"`
	SettlementPeriodDays int             `json:"settlement_period_days"`
	MinWithdrawal        decimal.Decimal `json:"min_withdrawal"`
}

func (p Policy) validate() error {
	if p.CommissionRate.IsNegative() || p.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return errutil.ValidationFailed("commission_rate must be within [0, 1]", nil,
			errutil.WithDetails(errutil.Detail{Field: "commission_rate", Message: p.CommissionRate.String()}))
	}
	if p.SettlementPeriodDays < 0 {
		return errutil.ValidationFailed("settlement_period_days must not be negative", nil)
	}
	if p.MinWithdrawal.IsNegative() {
		return errutil.ValidationFailed("min_withdrawal must not be negative", nil)
	}
	return nil
}

// PolicyHolder hands out the current Policy; updates replace it atomically.
type PolicyHolder struct {
	p atomic.Pointer[Policy]
}

func NewPolicyHolder(p Policy) (*PolicyHolder, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	h := &PolicyHolder{}
	h.p.Store(&p)
	return h, nil
}

// PolicyFromConfig builds the holder from the AFFILIATE config section.
func PolicyFromConfig(cfg *config.Config) (*PolicyHolder, error) {
	rate, err := decimal.NewFromString(cfg.Affiliate.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("affiliate commission rate: %w", err)
	}
	minWithdrawal, err := decimal.NewFromString(cfg.Affiliate.MinWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("affiliate min withdrawal: %w", err)
	}
	return NewPolicyHolder(Policy{
		CommissionRate:       rate,
		SettlementPeriodDays: cfg.Affiliate.SettlementPeriodDays,
		MinWithdrawal:        minWithdrawal,
	})
}

func (h *PolicyHolder) Get() Policy {
	return *h.p.Load()
}

func (h *PolicyHolder) Set(p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	h.p.Store(&p)
	return nil
}
