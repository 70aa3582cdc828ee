package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront-core/pkg/db/option"
	"storefront-core/pkg/lock"
	"storefront-core/pkg/rediskey"
	"storefront-core/pkg/repository"
	pkgtask "storefront-core/pkg/task"
	"storefront-core/pkg/taskname"
	"storefront-core/services/affiliate"
	"storefront-core/services/order"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	settlementUniqueFor = 6 * time.Hour
	reconcileLockTTL    = 30 * time.Minute
)

type Settler interface {
	Settle(ctx context.Context, periodDays int) (int, error)
}

type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

type Service struct {
	jobs       repository.Repository[Job]
	node       *snowflake.Node
	enqueuer   pkgtask.Enqueuer
	settler    Settler
	reconciler Reconciler
	locker     lock.Locker
}

type Params struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Enqueuer  pkgtask.Enqueuer
	Affiliate *affiliate.Service
	Order     *order.Service
	Locker    lock.Locker
}

func NewService(p Params) *Service {
	return &Service{
		jobs:       repository.ProvideStore[Job](p.DB),
		node:       p.Node,
		enqueuer:   p.Enqueuer,
		settler:    p.Affiliate,
		reconciler: p.Order,
		locker:     p.Locker,
	}
}

// EnqueueSettlement records a pending job and queues one settlement run.
// A run already queued within settlementUniqueFor is not duplicated.
func (s *Service) EnqueueSettlement(ctx context.Context, periodDays int) (*Job, error) {
	job, err := s.newJob(ctx, taskname.AffiliateSettlementRun)
	if err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(SettlementPayload{JobID: job.ID, PeriodDays: periodDays})
	return s.enqueue(ctx, job, asynq.NewTask(taskname.AffiliateSettlementRun, payload),
		asynq.Queue(taskname.QueueCritical),
		asynq.Unique(settlementUniqueFor),
		asynq.MaxRetry(3),
	)
}

func (s *Service) EnqueueReconcile(ctx context.Context) (*Job, error) {
	job, err := s.newJob(ctx, taskname.OrderAuditReconcile)
	if err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(ReconcilePayload{JobID: job.ID})
	return s.enqueue(ctx, job, asynq.NewTask(taskname.OrderAuditReconcile, payload),
		asynq.Queue(taskname.QueueLow),
		asynq.Unique(settlementUniqueFor),
	)
}

func (s *Service) newJob(ctx context.Context, name string) (*Job, error) {
	job := &Job{
		ID:       s.node.Generate().String(),
		TaskName: name,
		Status:   JobPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the most recent jobs, optionally filtered by task name.
func (s *Service) ListJobs(ctx context.Context, taskName string, limit int) ([]*Job, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	}
	if taskName != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "task_name", Value: taskName}))
	}
	return s.jobs.Find(ctx, &Job{}, opts...)
}

func (s *Service) enqueue(ctx context.Context, job *Job, t *asynq.Task, opts ...asynq.Option) (*Job, error) {
	_, err := s.enqueuer.Enqueue(ctx, t, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		zap.L().Info("task already queued", zap.String("task_type", t.Type()), zap.String("job_id", job.ID))
		s.finish(ctx, job.ID, JobSkipped, nil, "already queued")
		job.Status = JobSkipped
		return job, nil
	}
	if err != nil {
		s.finish(ctx, job.ID, JobFailed, nil, err.Error())
		return nil, err
	}

	zap.L().Info("enqueued task", zap.String("task_type", t.Type()), zap.String("job_id", job.ID))
	return job, nil
}

// HandleSettlementTask is the asynq handler of AffiliateSettlementRun.
func (s *Service) HandleSettlementTask(ctx context.Context, t *asynq.Task) error {
	var payload SettlementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid settlement payload", zap.Error(err))
		return errors.Join(err, asynq.SkipRetry)
	}

	jobID := s.start(ctx, payload.JobID, taskname.AffiliateSettlementRun)
	n, err := s.settler.Settle(ctx, payload.PeriodDays)
	if errors.Is(err, affiliate.ErrSettlementInProgress) {
		s.finish(ctx, jobID, JobSkipped, nil, err.Error())
		return nil
	}
	if err != nil {
		s.finish(ctx, jobID, JobFailed, map[string]any{"settled": n}, err.Error())
		return err
	}

	s.finish(ctx, jobID, JobSuccess, map[string]any{"settled": n}, "")
	return nil
}

// HandleReconcileTask is the asynq handler of OrderAuditReconcile.
func (s *Service) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			zap.L().Error("invalid reconcile payload", zap.Error(err))
			return errors.Join(err, asynq.SkipRetry)
		}
	}

	jobID := s.start(ctx, payload.JobID, taskname.OrderAuditReconcile)

	lk, err := s.locker.Obtain(ctx, rediskey.ReconcileLockKey(), reconcileLockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		s.finish(ctx, jobID, JobSkipped, nil, "another reconcile is running")
		return nil
	}
	if err != nil {
		s.finish(ctx, jobID, JobFailed, nil, err.Error())
		return err
	}
	defer lk.Release(context.WithoutCancel(ctx))

	n, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.finish(ctx, jobID, JobFailed, map[string]any{"changed": n}, err.Error())
		return err
	}
	s.finish(ctx, jobID, JobSuccess, map[string]any{"changed": n}, "")
	return nil
}

// start marks jobID running, creating the record when the task was queued
// without one.
func (s *Service) start(ctx context.Context, jobID, name string) string {
	now := time.Now().UTC()
	if jobID != "" {
		existing, err := s.jobs.FindOne(ctx, &Job{ID: jobID})
		if err == nil && existing != nil {
			if err := s.jobs.Update(ctx, jobID, map[string]any{"status": JobRunning, "started_at": now}); err == nil {
				return jobID
			}
		}
	}

	job := &Job{ID: s.node.Generate().String(), TaskName: name, Status: JobRunning, StartedAt: &now}
	if err := s.jobs.Create(ctx, job); err != nil {
		zap.L().Warn("failed to record job start", zap.String("task_name", name), zap.Error(err))
	}
	return job.ID
}

func (s *Service) finish(ctx context.Context, jobID string, status JobStatus, metadata map[string]any, msg string) {
	updates := map[string]any{
		"status":       status,
		"error_msg":    msg,
		"completed_at": time.Now().UTC(),
	}
	if metadata != nil {
		b, _ := json.Marshal(metadata)
		updates["metadata"] = datatypes.JSON(b)
	}
	if err := s.jobs.Update(context.WithoutCancel(ctx), jobID, updates); err != nil {
		zap.L().Warn("failed to record job result", zap.String("job_id", jobID), zap.Error(err))
	}
}

// RegisterHandlers binds the task handlers on the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.AffiliateSettlementRun, s.HandleSettlementTask)
	mux.HandleFunc(taskname.OrderAuditReconcile, s.HandleReconcileTask)
}
