package discount

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront-core/pkg/errutil"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/validation"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrCodeNotFound  = errutil.New(errutil.StatusNotFound, "discount code not found", errutil.WithReason("discount_not_found"))
	ErrNotYetValid   = errutil.New(errutil.StatusUnprocessableEntity, "discount code is not yet valid", errutil.WithReason("discount_not_yet_valid"))
	ErrExpired       = errutil.New(errutil.StatusUnprocessableEntity, "discount code has expired", errutil.WithReason("discount_expired"))
	ErrUsageExceeded = errutil.New(errutil.StatusUnprocessableEntity, "discount code usage limit reached", errutil.WithReason("discount_usage_exceeded"))
	ErrBelowMinimum  = errutil.New(errutil.StatusUnprocessableEntity, "order amount is below the discount minimum", errutil.WithReason("discount_below_minimum"))
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks code against amount at now without mutating anything.
func (s *Service) Validate(ctx context.Context, code string, amount decimal.Decimal, now time.Time) (*DiscountCode, error) {
	dc, err := s.find(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if err := Check(dc, amount, now); err != nil {
		return nil, err
	}
	return dc, nil
}

// Preview validates and prices code for amount at the current time.
func (s *Service) Preview(ctx context.Context, code string, amount decimal.Decimal) (*Quote, error) {
	dc, err := s.Validate(ctx, code, amount, s.now())
	if err != nil {
		return nil, err
	}
	q := Apply(dc, amount)
	return &q, nil
}

// Redeem re-validates code inside tx and claims one use of it. The claim is
// a conditional increment, so two orders racing for the last use cannot both
// succeed.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, code string, amount decimal.Decimal, now time.Time) (*DiscountCode, *Quote, error) {
	log := logger.FromContext(ctx).With(zap.String("code", normalize(code)))

	dc, err := s.find(ctx, tx, code)
	if err != nil {
		return nil, nil, err
	}
	if err := Check(dc, amount, now); err != nil {
		return nil, nil, err
	}

	res := tx.WithContext(ctx).Model(&DiscountCode{}).
		Where("id = ? AND is_active = ? AND (max_uses IS NULL OR used_count < max_uses)", dc.ID, true).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		log.Error("failed to claim discount usage", zap.Error(res.Error))
		return nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		log.Warn("discount usage claim lost")
		return nil, nil, ErrUsageExceeded
	}

	dc.UsedCount++
	q := Apply(dc, amount)
	return dc, &q, nil
}

func (s *Service) find(ctx context.Context, db *gorm.DB, code string) (*DiscountCode, error) {
	var dc DiscountCode
	err := db.WithContext(ctx).Where("code = ? AND is_active = ?", normalize(code), true).Take(&dc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.Extend(ErrCodeNotFound, errutil.WithDetails(errutil.Detail{Field: "code", Message: code}))
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// Check applies the validity rules of dc for amount at now.
func Check(dc *DiscountCode, amount decimal.Decimal, now time.Time) error {
	if now.Before(dc.ValidFrom) {
		return ErrNotYetValid
	}
	if dc.ValidTo != nil && now.After(*dc.ValidTo) {
		return ErrExpired
	}
	if dc.MaxUses != nil && dc.UsedCount >= *dc.MaxUses {
		return ErrUsageExceeded
	}
	if amount.LessThan(dc.MinOrderAmount) {
		return ErrBelowMinimum
	}
	return nil
}

// Apply prices amount with dc. A nil dc leaves the amount unchanged. The
// discount never exceeds the amount.
func Apply(dc *DiscountCode, amount decimal.Decimal) Quote {
	q := Quote{OriginalAmount: amount, DiscountAmount: decimal.Zero, FinalAmount: amount}
	if dc == nil {
		return q
	}

	var off decimal.Decimal
	switch dc.Kind {
	case Percentage:
		off = amount.Mul(dc.Value).Div(hundred).Round(2)
	default:
		off = dc.Value
	}
	if off.GreaterThan(amount) {
		off = amount
	}
	if off.IsNegative() {
		off = decimal.Zero
	}

	q.Code = dc.Code
	q.DiscountAmount = off
	q.FinalAmount = decimal.Max(decimal.Zero, amount.Sub(off))
	return q
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*DiscountCode, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	switch req.Kind {
	case Percentage:
		if !req.Value.IsPositive() || req.Value.GreaterThan(hundred) {
			return nil, errutil.ValidationFailed("percentage must be within (0, 100]", nil,
				errutil.WithDetails(errutil.Detail{Field: "value", Message: req.Value.String()}))
		}
	case Fixed:
		if !req.Value.IsPositive() {
			return nil, errutil.ValidationFailed("fixed discount must be positive", nil,
				errutil.WithDetails(errutil.Detail{Field: "value", Message: req.Value.String()}))
		}
	}
	if req.MinOrderAmount.IsNegative() {
		return nil, errutil.ValidationFailed("min_order_amount must not be negative", nil)
	}

	validFrom := s.now()
	if req.ValidFrom != nil {
		validFrom = req.ValidFrom.UTC()
	}
	if req.ValidTo != nil && !req.ValidTo.After(validFrom) {
		return nil, errutil.ValidationFailed("valid_to must be after valid_from", nil)
	}

	dc := &DiscountCode{
		ID:             s.node.Generate().String(),
		Code:           normalize(req.Code),
		Kind:           req.Kind,
		Value:          req.Value,
		MinOrderAmount: req.MinOrderAmount,
		MaxUses:        req.MaxUses,
		IsActive:       true,
		ValidFrom:      validFrom,
		ValidTo:        req.ValidTo,
	}
	if err := s.db.WithContext(ctx).Create(dc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("discount code already exists", err)
		}
		logger.FromContext(ctx).Error("failed to create discount code", zap.Error(err))
		return nil, err
	}
	return dc, nil
}

func (s *Service) SetActive(ctx context.Context, code string, active bool) error {
	res := s.db.WithContext(ctx).Model(&DiscountCode{}).Where("code = ?", normalize(code)).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}
