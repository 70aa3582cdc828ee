package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront-core/pkg/db/option"
	"storefront-core/pkg/db/pagination"
	"storefront-core/pkg/errutil"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/sequence"
	"storefront-core/pkg/validation"
	"storefront-core/services/affiliate"
	"storefront-core/services/auditlog"
	"storefront-core/services/catalog"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound             = errutil.New(errutil.StatusNotFound, "order not found", errutil.WithReason("order_not_found"))
	ErrInvalidTransition         = errutil.New(errutil.StatusUnprocessableEntity, "order cannot move to the requested status", errutil.WithReason("invalid_transition"))
	ErrManualFulfillmentRequired = errutil.New(errutil.StatusUnprocessableEntity, "order needs manual fulfillment", errutil.WithReason("manual_fulfillment_required"))
	ErrConcurrentTransition      = errutil.New(errutil.StatusConflict, "order was modified concurrently", errutil.WithReason("concurrent_transition"))
)

const orderNoAttempts = 3

// Allocator is the inventory side used by ordering.
type Allocator interface {
	AvailableTx(ctx context.Context, tx *gorm.DB, productID string) (int64, error)
	Fulfill(ctx context.Context, tx *gorm.DB, orderID string, lines []inventory.Line) (*inventory.Allocation, error)
	ConsumeVirtual(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type Pricer interface {
	Redeem(ctx context.Context, tx *gorm.DB, code string, amount decimal.Decimal, now time.Time) (*discount.DiscountCode, *discount.Quote, error)
}

type Creditor interface {
	Credit(ctx context.Context, tx *gorm.DB, req affiliate.CreditRequest) (*affiliate.EarningRecord, error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	catalog   catalog.Repository
	allocator Allocator
	pricer    Pricer
	creditor  Creditor
	audit     auditlog.Store
	orderNo   sequence.Generator
	now       func() time.Time
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Catalog   catalog.Repository
	Inventory *inventory.Service
	Discount  *discount.Service
	Affiliate *affiliate.Service
	Audit     auditlog.Store
	OrderNo   sequence.Generator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		catalog:   p.Catalog,
		allocator: p.Inventory,
		pricer:    p.Discount,
		creditor:  p.Affiliate,
		audit:     p.Audit,
		orderNo:   p.OrderNo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create prices and stores a new pending_payment order together with its
// audit log. The discount use is claimed in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With(zap.String("member_id", req.MemberID))

	for attempt := 1; ; attempt++ {
		orderNo, err := s.orderNo.NextOrderNo(ctx)
		if err != nil {
			log.Error("failed to allocate order number", zap.Error(err))
			return nil, errutil.ServiceUnavailable("order number unavailable", err)
		}

		o, err := s.create(ctx, req, orderNo)
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < orderNoAttempts {
			log.Warn("order number collision, retrying", zap.String("order_no", orderNo))
			continue
		}
		if err != nil {
			if !errutil.IsValidation(err) && !errutil.IsNotFound(err) && !errutil.IsState(err) {
				log.Error("failed to create order", zap.Error(err))
			}
			return nil, err
		}

		transitionsTotal.WithLabelValues(string(PendingPayment)).Inc()
		log.Info("order created", zap.String("order_id", o.ID), zap.String("order_no", o.OrderNo))
		return o, nil
	}
}

func (s *Service) create(ctx context.Context, req CreateOrderRequest, orderNo string) (*Order, error) {
	now := s.now()
	wanted := make(map[string]int64, len(req.Lines))
	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		if _, ok := wanted[l.ProductID]; !ok {
			ids = append(ids, l.ProductID)
		}
		wanted[l.ProductID] += l.Quantity
	}
	sort.Strings(ids)

	var out *Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := s.catalog.WithTrx(tx).GetMany(ctx, ids)
		if err != nil {
			return err
		}

		var details []errutil.Detail
		for _, id := range ids {
			p, ok := products[id]
			switch {
			case !ok:
				details = append(details, errutil.Detail{Field: id, Message: "product not found"})
				continue
			case !p.IsActive:
				details = append(details, errutil.Detail{Field: id, Message: "product is not on sale"})
				continue
			}
			available, err := s.allocator.AvailableTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if available < wanted[id] {
				details = append(details, errutil.Detail{Field: id, Message: fmt.Sprintf("only %d left", available)})
			}
		}
		if len(details) > 0 {
			return errutil.ValidationFailed("order lines cannot be fulfilled", nil, errutil.WithDetails(details...))
		}

		orderID := s.node.Generate().String()
		lines := make([]OrderLine, 0, len(req.Lines))
		auditLines := make([]auditlog.Line, 0, len(req.Lines))
		original := decimal.Zero
		for _, l := range req.Lines {
			p := products[l.ProductID]
			lines = append(lines, OrderLine{
				ID:          s.node.Generate().String(),
				OrderID:     orderID,
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    l.Quantity,
				UnitPrice:   p.Price,
			})
			auditLines = append(auditLines, auditlog.Line{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  l.Quantity,
				UnitPrice: p.Price,
			})
			original = original.Add(p.Price.Mul(decimal.NewFromInt(l.Quantity)))
		}

		quote := discount.Apply(nil, original)
		var discountID *string
		if code := strings.TrimSpace(req.DiscountCode); code != "" {
			dc, q, err := s.pricer.Redeem(ctx, tx, code, original, now)
			if err != nil {
				return err
			}
			quote = *q
			discountID = &dc.ID
		}

		o := &Order{
			ID:             orderID,
			OrderNo:        orderNo,
			MemberID:       req.MemberID,
			DiscountID:     discountID,
			DiscountCode:   quote.Code,
			OriginalAmount: quote.OriginalAmount,
			DiscountAmount: quote.DiscountAmount,
			FinalAmount:    quote.FinalAmount,
			Status:         PendingPayment,
			CreatedAt:      now,
		}
		if err := tx.Omit("Lines").Create(o).Error; err != nil {
			return err
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}

		repo := s.catalog.WithTrx(tx)
		for _, id := range ids {
			if err := repo.AddSoldCount(ctx, id, wanted[id]); err != nil {
				return err
			}
		}

		if err := s.audit.WithTrx(tx).Create(ctx, &auditlog.Document{
			OrderID:   o.ID,
			OrderNo:   o.OrderNo,
			MemberID:  o.MemberID,
			Lines:     auditLines,
			Customer:  req.Customer,
			CreatedAt: now,
			History:   []auditlog.Entry{{Status: string(PendingPayment), Timestamp: now, Message: "order created"}},
		}); err != nil {
			return err
		}

		o.Lines = lines
		out = o
		return nil
	})
	return out, err
}

// Transition moves an order to req.Target, running the side effect of the
// target status in the same transaction. The move is checked against the
// locked row, so a stale caller gets ErrInvalidTransition or
// ErrConcurrentTransition instead of skipping a status.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.Target.String() == "" {
		return nil, errutil.ValidationFailed("unknown target status", nil,
			errutil.WithDetails(errutil.Detail{Field: "target", Message: string(req.Target)}))
	}
	log := logger.FromContext(ctx).With(zap.String("order_id", req.OrderID), zap.String("target", string(req.Target)))

	var (
		out         *Order
		needsManual bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.lockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, req.Target) {
			return errutil.Extend(ErrInvalidTransition, errutil.WithDetails(
				errutil.Detail{Field: "from", Message: string(o.Status)},
				errutil.Detail{Field: "to", Message: string(req.Target)},
			))
		}

		now := s.now()
		updates := map[string]any{
			"status":  req.Target,
			"version": gorm.Expr("version + 1"),
		}
		message := req.Reason

		switch req.Target {
		case UserPaid:
			if message == "" {
				message = "payment confirmed"
			}
		case Shipped:
			content, mode, err := s.ship(ctx, tx, o, req.ShipContent)
			if errors.Is(err, inventory.ErrInsufficientStock) {
				needsManual = true
			}
			if err != nil {
				return err
			}
			updates["fulfillment_mode"] = mode
			updates["ship_content"] = content
			message = content
		case Completed:
			if _, err := s.creditor.Credit(ctx, tx, affiliate.CreditRequest{
				OrderID:     o.ID,
				BuyerID:     o.MemberID,
				FinalAmount: o.FinalAmount,
			}); err != nil {
				return err
			}
			if message == "" {
				message = "order completed"
			}
		case Rejected:
			if message == "" {
				message = "order rejected"
			}
			updates["reject_reason"] = message
			if o.FulfillmentMode == FulfillmentAuto {
				log.Warn("rejected order keeps its sold units", zap.String("order_no", o.OrderNo))
			}
		case PendingPayment:
			if message == "" {
				message = "order reopened"
			}
			updates["reject_reason"] = ""
		}

		res := tx.Model(&Order{}).
			Where("id = ? AND status = ? AND version = ?", o.ID, o.Status, o.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentTransition
		}

		if err := s.audit.WithTrx(tx).Append(ctx, o.ID, auditlog.Entry{
			Status:    string(req.Target),
			Timestamp: now,
			Message:   message,
		}); err != nil {
			return err
		}

		out, err = s.get(ctx, tx, o.ID)
		return err
	})
	if needsManual {
		return nil, s.flagManual(ctx, req.OrderID, err)
	}
	if err != nil {
		if errutil.IsState(err) || errutil.IsNotFound(err) || errutil.IsConcurrency(err) {
			log.Info("transition refused", zap.Error(err))
		} else {
			log.Error("transition failed", zap.Error(err))
		}
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(req.Target)).Inc()
	log.Info("order transitioned", zap.Int64("version", out.Version))
	return out, nil
}

// ship fulfills o from serialized stock. content is used only when the
// serialized stock cannot cover the order; a failed allocation is rolled back
// to a savepoint so no partial claim survives the manual path.
func (s *Service) ship(ctx context.Context, tx *gorm.DB, o *Order, content string) (string, FulfillmentMode, error) {
	lines := make([]inventory.Line, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, inventory.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	var alloc *inventory.Allocation
	err := tx.Transaction(func(sp *gorm.DB) error {
		var err error
		alloc, err = s.allocator.Fulfill(ctx, sp, o.ID, lines)
		return err
	})
	content = strings.TrimSpace(content)
	switch {
	case err == nil:
	case errors.Is(err, inventory.ErrInsufficientStock) && content != "":
		if err := s.allocator.ConsumeVirtual(ctx, tx, lines); err != nil {
			return "", "", err
		}
		return content, FulfillmentManual, nil
	default:
		return "", "", err
	}

	keys := alloc.Keys()
	if err := s.audit.WithTrx(tx).AssignUnits(ctx, o.ID, keys); err != nil {
		return "", "", err
	}
	if content != "" {
		logger.FromContext(ctx).Info("serialized stock available, operator content ignored", zap.String("order_id", o.ID))
	}
	return strings.Join(keys, "\n"), FulfillmentAuto, nil
}

// flagManual marks a paid order as waiting for an operator after automatic
// fulfillment failed. The status does not change.
func (s *Service) flagManual(ctx context.Context, orderID string, cause error) error {
	log := logger.FromContext(ctx).With(zap.String("order_id", orderID))
	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", orderID, UserPaid).
		Update("fulfillment_mode", FulfillmentManualRequired)
	if res.Error != nil {
		log.Error("failed to flag order for manual fulfillment", zap.Error(res.Error))
		return res.Error
	}
	log.Info("order flagged for manual fulfillment")
	return errutil.Extend(ErrManualFulfillmentRequired, errutil.WithErr(cause))
}

func (s *Service) MarkPaid(ctx context.Context, id string) (*Order, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Target: UserPaid})
}

// Ship fulfills from serialized stock; content is the operator fallback when
// that stock is short.
func (s *Service) Ship(ctx context.Context, id, content string) (*Order, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Target: Shipped, ShipContent: content})
}

func (s *Service) Complete(ctx context.Context, id string) (*Order, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Target: Completed})
}

func (s *Service) Reject(ctx context.Context, id, reason string) (*Order, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Target: Rejected, Reason: reason})
}

func (s *Service) Reopen(ctx context.Context, id string) (*Order, error) {
	return s.Transition(ctx, TransitionRequest{OrderID: id, Target: PendingPayment})
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.get(ctx, s.db, id)
}

func (s *Service) GetByOrderNo(ctx context.Context, orderNo string) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).Preload("Lines").Where("order_no = ?", orderNo).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) get(ctx context.Context, db *gorm.DB, id string) (*Order, error) {
	var o Order
	err := db.WithContext(ctx).Preload("Lines").Where("id = ?", id).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) lockOrder(ctx context.Context, tx *gorm.DB, id string) (*Order, error) {
	var o Order
	err := option.Apply(tx.WithContext(ctx), option.WithLockingUpdate()).Where("id = ?", id).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("order_id = ?", id).Order("id ASC").Find(&o.Lines).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// List pages orders newest first.
func (s *Service) List(ctx context.Context, p ListParams) (*ListResult, error) {
	limit := p.Normalized()

	q := s.db.WithContext(ctx).Model(&Order{})
	if p.MemberID != "" {
		q = q.Where("member_id = ?", p.MemberID)
	}
	if p.Status != "" {
		q = q.Where("status = ?", p.Status)
	}
	if p.Cursor != "" {
		c, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, errutil.BadRequest("invalid cursor", err)
		}
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var rows []*Order
	if err := q.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, err
	}

	rows, info, err := pagination.Trim(rows, limit, func(o *Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	if err != nil {
		return nil, err
	}
	return &ListResult{Orders: rows, PageInfo: info}, nil
}

// History returns the audit document of an order.
func (s *Service) History(ctx context.Context, id string) (*auditlog.Document, error) {
	doc, err := s.audit.Get(ctx, id)
	if errors.Is(err, auditlog.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return doc, err
}
