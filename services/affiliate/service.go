package affiliate

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront-core/pkg/errutil"
	"storefront-core/pkg/lock"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/rediskey"
	"storefront-core/pkg/util"
	"storefront-core/pkg/validation"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMemberNotFound       = errutil.New(errutil.StatusNotFound, "member not found", errutil.WithReason("member_not_found"))
	ErrInviteCodeNotFound   = errutil.New(errutil.StatusNotFound, "invite code not found", errutil.WithReason("invite_code_not_found"))
	ErrUsernameTaken        = errutil.New(errutil.StatusConflict, "username already registered", errutil.WithReason("username_taken"))
	ErrSettlementInProgress = errutil.New(errutil.StatusConflict, "settlement is already running", errutil.WithReason("settlement_in_progress"))
)

const (
	settlementLockTTL = 10 * time.Minute
	inviteCodeLength  = 8
	settleBatchSize   = 500
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	policy *PolicyHolder
	locker lock.Locker
	now    func() time.Time
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Policy *PolicyHolder
	Locker lock.Locker
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		policy: p.Policy,
		locker: p.Locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Policy() Policy {
	return s.policy.Get()
}

func (s *Service) UpdatePolicy(ctx context.Context, p Policy) error {
	if err := s.policy.Set(p); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("affiliate policy updated",
		zap.String("commission_rate", p.CommissionRate.String()),
		zap.Int("settlement_period_days", p.SettlementPeriodDays),
		zap.String("min_withdrawal", p.MinWithdrawal.String()),
	)
	return nil
}

// Credit records the commission of the buyer's direct inviter for a completed
// order. A second call for the same order and payee is a no-op. tx may be nil.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, req CreditRequest) (*EarningRecord, error) {
	if tx == nil {
		tx = s.db
	}
	log := logger.FromContext(ctx).With(zap.String("order_id", req.OrderID), zap.String("buyer_id", req.BuyerID))

	var ref Referral
	err := tx.WithContext(ctx).Where("invitee_id = ?", req.BuyerID).Take(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ref.InviterID == req.BuyerID {
		return nil, nil
	}

	amount := req.FinalAmount.Mul(s.policy.Get().CommissionRate).Round(2)
	if !amount.IsPositive() {
		return nil, nil
	}

	orderID := req.OrderID
	rec := &EarningRecord{
		ID:        s.node.Generate().String(),
		MemberID:  ref.InviterID,
		Source:    SourceOrderCommission,
		OrderID:   &orderID,
		Amount:    amount,
		Status:    EarningPending,
		CreatedAt: s.now(),
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "member_id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		log.Error("failed to insert earning record", zap.Error(res.Error))
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		log.Info("commission already credited", zap.String("payee_id", ref.InviterID))
		return nil, nil
	}

	upd := tx.WithContext(ctx).Model(&Member{}).Where("id = ?", ref.InviterID).
		Update("balance_pending", gorm.Expr("balance_pending + ?", amount))
	if upd.Error != nil {
		return nil, upd.Error
	}
	if upd.RowsAffected == 0 {
		return nil, errutil.Extend(ErrMemberNotFound, errutil.WithDetails(errutil.Detail{Field: "payee_id", Message: ref.InviterID}))
	}

	commissionCredited.Inc()
	log.Info("commission credited", zap.String("payee_id", ref.InviterID), zap.String("amount", amount.String()))
	return rec, nil
}

// Settle matures pending earnings older than periodDays (policy value when
// periodDays < 0). Only one sweep runs at a time; a concurrent call returns
// ErrSettlementInProgress. Each record commits on its own.
func (s *Service) Settle(ctx context.Context, periodDays int) (int, error) {
	log := logger.FromContext(ctx)
	if periodDays < 0 {
		periodDays = s.policy.Get().SettlementPeriodDays
	}

	lk, err := s.locker.Obtain(ctx, rediskey.SettlementLockKey(), settlementLockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		log.Info("settlement skipped, another run holds the lock")
		return 0, ErrSettlementInProgress
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release settlement lock", zap.Error(err))
		}
	}()

	cutoff := s.now().AddDate(0, 0, -periodDays)
	settled := 0
	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		var batch []EarningRecord
		q := s.db.WithContext(ctx).
			Where("status = ? AND created_at <= ?", EarningPending, cutoff).
			Order("id ASC").
			Limit(settleBatchSize)
		if lastID != "" {
			q = q.Where("id > ?", lastID)
		}
		if err := q.Find(&batch).Error; err != nil {
			return settled, err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			ok, err := s.settleOne(ctx, &batch[i])
			if errors.Is(err, ErrMemberNotFound) {
				log.Warn("earning left pending, payee missing",
					zap.String("earning_id", batch[i].ID),
					zap.String("member_id", batch[i].MemberID),
				)
				continue
			}
			if err != nil {
				log.Error("failed to settle earning", zap.String("earning_id", batch[i].ID), zap.Error(err))
				return settled, err
			}
			if ok {
				settled++
			}
		}
		lastID = batch[len(batch)-1].ID
		if len(batch) < settleBatchSize {
			break
		}
	}

	earningsSettled.Add(float64(settled))
	log.Info("settlement finished", zap.Int("settled", settled), zap.Int("period_days", periodDays))
	return settled, nil
}

func (s *Service) settleOne(ctx context.Context, rec *EarningRecord) (bool, error) {
	done := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		res := tx.Model(&EarningRecord{}).
			Where("id = ? AND status = ?", rec.ID, EarningPending).
			Updates(map[string]any{"status": EarningAvailable, "settled_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		res = tx.Model(&Member{}).Where("id = ?", rec.MemberID).Updates(map[string]any{
			"balance_pending":   gorm.Expr("balance_pending - ?", rec.Amount),
			"balance_available": gorm.Expr("balance_available + ?", rec.Amount),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Extend(ErrMemberNotFound, errutil.WithDetails(errutil.Detail{Field: "member_id", Message: rec.MemberID}))
		}
		done = true
		return nil
	})
	return done, err
}

// Register creates a member with its own invite code and, when inviteCode
// is set, the referral edge to its owner.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Member, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With(zap.String("username", req.Username))

	var m *Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inviter *Member
		if code := strings.ToUpper(strings.TrimSpace(req.InviteCode)); code != "" {
			var found Member
			err := tx.Where("invite_code = ?", code).Take(&found).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errutil.Extend(ErrInviteCodeNotFound, errutil.WithDetails(errutil.Detail{Field: "invite_code", Message: code}))
			}
			if err != nil {
				return err
			}
			inviter = &found
		}

		created, err := s.createMember(tx, strings.TrimSpace(req.Username))
		if err != nil {
			return err
		}

		if inviter != nil {
			if err := tx.Create(&Referral{
				ID:        s.node.Generate().String(),
				InviterID: inviter.ID,
				InviteeID: created.ID,
				CodeUsed:  inviter.InviteCode,
			}).Error; err != nil {
				return err
			}
		}
		m = created
		return nil
	})
	if err != nil {
		if !errutil.IsNotFound(err) && !errutil.IsConcurrency(err) {
			log.Error("failed to register member", zap.Error(err))
		}
		return nil, err
	}
	return m, nil
}

func (s *Service) createMember(tx *gorm.DB, username string) (*Member, error) {
	var taken int64
	if err := tx.Model(&Member{}).Where("username = ?", username).Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, ErrUsernameTaken
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := util.GenerateInviteCode(inviteCodeLength)
		if err != nil {
			return nil, err
		}
		var clash int64
		if err := tx.Model(&Member{}).Where("invite_code = ?", code).Count(&clash).Error; err != nil {
			return nil, err
		}
		if clash > 0 {
			continue
		}

		m := &Member{
			ID:         s.node.Generate().String(),
			Username:   username,
			InviteCode: code,
		}
		if err := tx.Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrUsernameTaken
			}
			return nil, err
		}
		return m, nil
	}
	return nil, errutil.Internal("could not allocate a unique invite code", nil)
}

func (s *Service) GetMember(ctx context.Context, id string) (*Member, error) {
	var m Member
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) Summary(ctx context.Context, memberID string) (*Summary, error) {
	m, err := s.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		MemberID:         m.ID,
		InviteCode:       m.InviteCode,
		BalancePending:   m.BalancePending,
		BalanceAvailable: m.BalanceAvailable,
		TotalEarned:      m.TotalEarned,
	}
	if err := s.db.WithContext(ctx).Model(&Referral{}).Where("inviter_id = ?", m.ID).Count(&out.Invitees).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&EarningRecord{}).
		Where("member_id = ? AND status = ?", m.ID, EarningPending).
		Count(&out.PendingRecords).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Earnings lists a member's records, newest first.
func (s *Service) Earnings(ctx context.Context, memberID string, limit int) ([]EarningRecord, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var out []EarningRecord
	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
