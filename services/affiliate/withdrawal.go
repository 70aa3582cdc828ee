package affiliate

import (
	"context"
	"errors"

	"storefront-core/pkg/db/option"
	"storefront-core/pkg/errutil"
	"storefront-core/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrWithdrawalNotFound   = errutil.New(errutil.StatusNotFound, "withdrawal not found", errutil.WithReason("withdrawal_not_found"))
	ErrWithdrawalNotPending = errutil.New(errutil.StatusUnprocessableEntity, "withdrawal is not awaiting review", errutil.WithReason("withdrawal_not_pending"))
	ErrBelowMinWithdrawal   = errutil.New(errutil.StatusUnprocessableEntity, "amount is below the minimum withdrawal", errutil.WithReason("withdrawal_below_minimum"))
	ErrInsufficientBalance  = errutil.New(errutil.StatusUnprocessableEntity, "insufficient available balance", errutil.WithReason("insufficient_balance"))
	ErrWithdrawalConflict   = errutil.New(errutil.StatusConflict, "withdrawal was decided concurrently", errutil.WithReason("withdrawal_conflict"))
)

func (s *Service) RequestWithdrawal(ctx context.Context, memberID string, amount decimal.Decimal) (*Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, errutil.ValidationFailed("amount must be positive", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: amount.String()}))
	}
	amount = amount.Round(2)

	m, err := s.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(s.policy.Get().MinWithdrawal) {
		return nil, ErrBelowMinWithdrawal
	}
	if amount.GreaterThan(m.BalanceAvailable) {
		return nil, ErrInsufficientBalance
	}

	w := &Withdrawal{
		ID:       s.node.Generate().String(),
		MemberID: m.ID,
		Amount:   amount,
		Status:   WithdrawalSubmitted,
	}
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		logger.FromContext(ctx).Error("failed to create withdrawal", zap.String("member_id", memberID), zap.Error(err))
		return nil, err
	}
	return w, nil
}

// ApproveWithdrawal debits the member's available balance as of now, not as
// of submission. On ErrInsufficientBalance nothing changes.
func (s *Service) ApproveWithdrawal(ctx context.Context, id, feedback string) (*Withdrawal, error) {
	log := logger.FromContext(ctx).With(zap.String("withdrawal_id", id))

	var w *Withdrawal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := loadSubmitted(tx, id)
		if err != nil {
			return err
		}

		res := tx.Model(&Member{}).
			Where("id = ? AND balance_available >= ?", found.MemberID, found.Amount).
			Updates(map[string]any{
				"balance_available": gorm.Expr("balance_available - ?", found.Amount),
				"total_earned":      gorm.Expr("total_earned + ?", found.Amount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		if err := decide(tx, found, WithdrawalApproved, feedback); err != nil {
			return err
		}
		w = found
		return nil
	})
	if err != nil {
		if errutil.IsState(err) || errutil.IsNotFound(err) {
			log.Info("withdrawal not approved", zap.Error(err))
		} else {
			log.Error("failed to approve withdrawal", zap.Error(err))
		}
		return nil, err
	}

	withdrawalsDecided.WithLabelValues(string(WithdrawalApproved)).Inc()
	log.Info("withdrawal approved", zap.String("amount", w.Amount.String()))
	return w, nil
}

func (s *Service) RejectWithdrawal(ctx context.Context, id, feedback string) (*Withdrawal, error) {
	var w *Withdrawal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := loadSubmitted(tx, id)
		if err != nil {
			return err
		}
		if err := decide(tx, found, WithdrawalRejected, feedback); err != nil {
			return err
		}
		w = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	withdrawalsDecided.WithLabelValues(string(WithdrawalRejected)).Inc()
	return w, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, status WithdrawalStatus, limit int) ([]Withdrawal, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var out []Withdrawal
	err := q.Limit(limit).Find(&out).Error
	return out, err
}

func loadSubmitted(tx *gorm.DB, id string) (*Withdrawal, error) {
	var w Withdrawal
	err := option.Apply(tx, option.WithLockingUpdate()).Where("id = ?", id).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	if w.Status != WithdrawalSubmitted {
		return nil, errutil.Extend(ErrWithdrawalNotPending, errutil.WithDetails(errutil.Detail{Field: "status", Message: string(w.Status)}))
	}
	return &w, nil
}

// decide moves w out of submitted; losing the compare-and-set rolls back the
// caller's transaction.
func decide(tx *gorm.DB, w *Withdrawal, to WithdrawalStatus, feedback string) error {
	res := tx.Model(&Withdrawal{}).
		Where("id = ? AND status = ?", w.ID, WithdrawalSubmitted).
		Updates(map[string]any{"status": to, "feedback": feedback})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWithdrawalConflict
	}
	w.Status = to
	w.Feedback = feedback
	return nil
}
