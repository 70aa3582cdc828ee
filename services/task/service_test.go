package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"storefront-core/pkg/lock"
	"storefront-core/pkg/rediskey"
	"storefront-core/pkg/repository"
	"storefront-core/pkg/taskname"
	"storefront-core/services/affiliate"
	"storefront-core/services/testutil"
)

type enqueuerMock struct {
	tasks []*asynq.Task
	err   error
}

func (m *enqueuerMock) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tasks = append(m.tasks, t)
	return &asynq.TaskInfo{Type: t.Type()}, nil
}

type settlerMock struct {
	calls   []int
	settled int
	err     error
}

func (m *settlerMock) Settle(_ context.Context, periodDays int) (int, error) {
	m.calls = append(m.calls, periodDays)
	return m.settled, m.err
}

type reconcilerMock struct {
	calls   int
	changed int
}

func (m *reconcilerMock) ReconcileAll(context.Context) (int, error) {
	m.calls++
	return m.changed, nil
}

func newTestService(t *testing.T) (*Service, *enqueuerMock, *settlerMock, *reconcilerMock, *lock.LocalLocker) {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	enq := &enqueuerMock{}
	settler := &settlerMock{}
	reconciler := &reconcilerMock{}
	locker := lock.NewLocalLocker()
	svc := &Service{
		jobs:       repository.ProvideStore[Job](db),
		node:       testutil.NewNode(t),
		enqueuer:   enq,
		settler:    settler,
		reconciler: reconciler,
		locker:     locker,
	}
	return svc, enq, settler, reconciler, locker
}

func jobByID(t *testing.T, svc *Service, id string) Job {
	t.Helper()
	job, err := svc.jobs.FindOne(context.Background(), &Job{ID: id})
	require.NoError(t, err)
	require.NotNil(t, job)
	return *job
}

func TestEnqueueAndHandleSettlement(t *testing.T) {
	svc, enq, settler, _, _ := newTestService(t)
	ctx := context.Background()
	settler.settled = 4

	job, err := svc.EnqueueSettlement(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, JobPending, job.Status)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.AffiliateSettlementRun, enq.tasks[0].Type())

	require.NoError(t, svc.HandleSettlementTask(ctx, enq.tasks[0]))
	require.Equal(t, []int{7}, settler.calls)

	stored := jobByID(t, svc, job.ID)
	require.Equal(t, JobSuccess, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	var meta map[string]int
	require.NoError(t, json.Unmarshal(stored.Metadata, &meta))
	require.Equal(t, 4, meta["settled"])
}

func TestSettlementInProgressIsSkipped(t *testing.T) {
	svc, _, settler, _, _ := newTestService(t)
	settler.err = affiliate.ErrSettlementInProgress

	payload, _ := json.Marshal(SettlementPayload{PeriodDays: 7})
	require.NoError(t, svc.HandleSettlementTask(context.Background(), asynq.NewTask(taskname.AffiliateSettlementRun, payload)))

	jobs, err := svc.ListJobs(context.Background(), taskname.AffiliateSettlementRun, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, JobSkipped, jobs[0].Status)
}

func TestSettlementFailureIsReturned(t *testing.T) {
	svc, _, settler, _, _ := newTestService(t)
	settler.err = errors.New("db down")

	payload, _ := json.Marshal(SettlementPayload{PeriodDays: 7})
	err := svc.HandleSettlementTask(context.Background(), asynq.NewTask(taskname.AffiliateSettlementRun, payload))
	require.Error(t, err)

	err = svc.HandleSettlementTask(context.Background(), asynq.NewTask(taskname.AffiliateSettlementRun, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDuplicateEnqueueIsSkipped(t *testing.T) {
	svc, enq, _, _, _ := newTestService(t)
	enq.err = asynq.ErrDuplicateTask

	job, err := svc.EnqueueSettlement(context.Background(), -1)
	require.NoError(t, err)
	require.Equal(t, JobSkipped, job.Status)
	require.Equal(t, JobSkipped, jobByID(t, svc, job.ID).Status)
}

func TestReconcileTaskIsSingleFlight(t *testing.T) {
	svc, enq, _, reconciler, locker := newTestService(t)
	ctx := context.Background()
	reconciler.changed = 2

	job, err := svc.EnqueueReconcile(ctx)
	require.NoError(t, err)

	held, err := locker.Obtain(ctx, rediskey.ReconcileLockKey(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.HandleReconcileTask(ctx, enq.tasks[0]))
	require.Zero(t, reconciler.calls)
	require.Equal(t, JobSkipped, jobByID(t, svc, job.ID).Status)
	require.NoError(t, held.Release(ctx))

	require.NoError(t, svc.HandleReconcileTask(ctx, enq.tasks[0]))
	require.Equal(t, 1, reconciler.calls)
	require.Equal(t, JobSuccess, jobByID(t, svc, job.ID).Status)
}
