package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/checker"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/service"
)

func setupWorkerStore(t *testing.T) repository.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	require.NoError(t, db.Create(&models.Group{ID: 1, Title: "G-101"}).Error)
	require.NoError(t, db.Create(&[]models.Task{{ID: 7, Formulation: "sum"}, {ID: 8, Formulation: "product"}}).Error)
	require.NoError(t, db.Create(&models.Variant{ID: 3}).Error)
	return repository.NewStore(db)
}

type recordingGateway struct {
	mu       sync.Mutex
	requests []checker.Request
	verdict  func(req checker.Request) (checker.Verdict, error)
}

func (g *recordingGateway) Check(ctx context.Context, req checker.Request) (checker.Verdict, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.verdict(req)
}

func (g *recordingGateway) calls() []checker.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]checker.Request(nil), g.requests...)
}

func newTestWorker(store repository.Store, gateway checker.Gateway, lease Lease, cfg Config) *Worker {
	resolver := service.NewResolver(store.Catalog(), store.Seeds(), nil)
	applier := service.NewVerdictApplier(store, nil, zerolog.Nop())
	return New(store.Messages(), resolver, gateway, applier, lease, cfg, zerolog.Nop())
}

func submit(t *testing.T, store repository.Store, key models.SubmissionKey, code, ip string) models.Message {
	t.Helper()
	ctx := context.Background()
	message, err := store.Messages().Submit(ctx, key, code, ip)
	require.NoError(t, err)
	_, err = store.Statuses().SubmitTask(ctx, key, code, ip)
	require.NoError(t, err)
	return message
}

func TestWorkerPassGradesSubmission(t *testing.T) {
	store := setupWorkerStore(t)
	gateway := &recordingGateway{verdict: func(checker.Request) (checker.Verdict, error) {
		return checker.Verdict{Passed: true}, nil
	}}
	worker := newTestWorker(store, gateway, nil, Config{})
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}

	message := submit(t, store, key, "x", "1.2.3.4")

	report := worker.RunPass(ctx)
	require.Equal(t, PassReport{Pending: 1, Passed: 1}, report)

	calls := gateway.calls()
	require.Len(t, calls, 1)
	require.Equal(t, checker.Request{GroupTitle: "G-101", TaskID: 7, VariantID: 3, Formulation: "sum", Code: "x"}, calls[0])

	record, err := store.Statuses().GetTaskStatus(ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StatusChecked, record.Status)
	require.Equal(t, "1.2.3.4", record.IP)

	stored, err := store.Messages().GetByID(ctx, message.ID)
	require.NoError(t, err)
	require.True(t, stored.Processed)

	checks, err := store.Checks().ListByMessage(ctx, message.ID)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, models.CheckSourceWorker, checks[0].Source)

	require.Equal(t, PassReport{}, worker.RunPass(ctx), "nothing left to grade")
}

func TestWorkerPassRecordsFailureOutput(t *testing.T) {
	store := setupWorkerStore(t)
	gateway := &recordingGateway{verdict: func(checker.Request) (checker.Verdict, error) {
		return checker.Verdict{Passed: false, Detail: "expected 3, got 4"}, nil
	}}
	worker := newTestWorker(store, gateway, nil, Config{})
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}
	submit(t, store, key, "x", "")

	report := worker.RunPass(ctx)
	require.Equal(t, 1, report.Failed)

	record, err := store.Statuses().GetTaskStatus(ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, record.Status)
	require.Equal(t, "expected 3, got 4", record.ErrorMessage())
}

func TestWorkerPassChecksEarliestDuplicateOnce(t *testing.T) {
	store := setupWorkerStore(t)
	gateway := &recordingGateway{verdict: func(checker.Request) (checker.Verdict, error) {
		return checker.Verdict{Passed: true}, nil
	}}
	worker := newTestWorker(store, gateway, nil, Config{})
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}

	first := submit(t, store, key, "v1", "")
	submit(t, store, key, "v2", "")

	report := worker.RunPass(ctx)
	require.Equal(t, 1, report.Pending)
	require.Equal(t, "v1", gateway.calls()[0].Code)

	stored, err := store.Messages().GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, stored.Processed)

	report = worker.RunPass(ctx)
	require.Equal(t, 1, report.Passed)
	require.Equal(t, "v2", gateway.calls()[1].Code)
}

func TestWorkerPassSurvivesGatewayErrors(t *testing.T) {
	store := setupWorkerStore(t)
	gateway := &recordingGateway{verdict: func(req checker.Request) (checker.Verdict, error) {
		if req.TaskID == 7 {
			return checker.Verdict{}, &checker.GatewayError{Driver: "http", Err: errors.New("connection refused")}
		}
		return checker.Verdict{Passed: true}, nil
	}}
	worker := newTestWorker(store, gateway, nil, Config{})
	ctx := context.Background()

	broken := submit(t, store, models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}, "x", "")
	submit(t, store, models.SubmissionKey{TaskID: 8, VariantID: 3, GroupID: 1}, "y", "")
	orphan := submit(t, store, models.SubmissionKey{TaskID: 404, VariantID: 3, GroupID: 1}, "z", "")

	report := worker.RunPass(ctx)
	require.Equal(t, PassReport{Pending: 3, Passed: 1, Errors: 2}, report)

	for _, id := range []uint{broken.ID, orphan.ID} {
		stored, err := store.Messages().GetByID(ctx, id)
		require.NoError(t, err)
		require.False(t, stored.Processed, "failed messages stay pending")
	}

	record, err := store.Statuses().GetTaskStatus(ctx, broken.Key())
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, record.Status)
}

func TestWorkerPassBoundsCheckerTime(t *testing.T) {
	store := setupWorkerStore(t)
	release := make(chan struct{})
	defer close(release)
	gateway := checker.GatewayFunc(func(ctx context.Context, req checker.Request) (checker.Verdict, error) {
		<-release
		return checker.Verdict{Passed: true}, nil
	})
	worker := newTestWorker(store, gateway, nil, Config{CheckerTimeout: 20 * time.Millisecond})
	message := submit(t, store, models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}, "x", "")

	report := worker.RunPass(context.Background())
	require.Equal(t, 1, report.Errors)

	stored, err := store.Messages().GetByID(context.Background(), message.ID)
	require.NoError(t, err)
	require.False(t, stored.Processed)
}

type panickingResolver struct{}

func (panickingResolver) Resolve(models.Group, models.Task, int, *models.FinalSeed) models.ExternalTask {
	panic("resolver exploded")
}

func (panickingResolver) ResolveKey(context.Context, models.SubmissionKey) (service.ResolvedTask, error) {
	panic("resolver exploded")
}

func TestWorkerRunRecoversFromPanicsAndStops(t *testing.T) {
	store := setupWorkerStore(t)
	submit(t, store, models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}, "x", "")
	applier := service.NewVerdictApplier(store, nil, zerolog.Nop())
	worker := New(store.Messages(), panickingResolver{}, checker.GatewayFunc(func(context.Context, checker.Request) (checker.Verdict, error) {
		return checker.Verdict{Passed: true}, nil
	}), applier, nil, Config{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestRedisLeaseAllowsSingleWorker(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()
	ctx := context.Background()

	first := NewRedisLease(client, "grader:worker", time.Minute)
	second := NewRedisLease(client, "grader:worker", time.Minute)

	held, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, held)

	held, err = first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, held, "the holder renews its own lease")

	held, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, held)

	require.NoError(t, second.Release(ctx))
	require.True(t, server.Exists("grader:worker"), "only the holder may release")

	require.NoError(t, first.Release(ctx))
	held, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, held)
}

func TestWorkerSkipsPassWithoutLease(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	store := setupWorkerStore(t)
	gateway := &recordingGateway{verdict: func(checker.Request) (checker.Verdict, error) {
		return checker.Verdict{Passed: true}, nil
	}}
	submit(t, store, models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}, "x", "")

	holder := NewRedisLease(client, "grader:worker", time.Minute)
	held, err := holder.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, held)

	worker := newTestWorker(store, gateway, NewRedisLease(client, "grader:worker", time.Minute), Config{})
	report := worker.RunPass(context.Background())
	require.True(t, report.Skipped)
	require.Empty(t, gateway.calls())
}

func TestWorkerEndsPassWhenLeaseIsTakenOver(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()
	ctx := context.Background()

	store := setupWorkerStore(t)
	submit(t, store, models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}, "x", "")
	second := submit(t, store, models.SubmissionKey{TaskID: 8, VariantID: 3, GroupID: 1}, "y", "")

	rival := NewRedisLease(client, "grader:worker", time.Minute)
	gateway := &recordingGateway{verdict: func(checker.Request) (checker.Verdict, error) {
		// the check outlives the lease and another instance takes over
		server.FastForward(2 * time.Minute)
		held, err := rival.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, held)
		return checker.Verdict{Passed: true}, nil
	}}

	worker := newTestWorker(store, gateway, NewRedisLease(client, "grader:worker", time.Minute), Config{})
	report := worker.RunPass(ctx)
	require.True(t, report.LeaseLost)
	require.Equal(t, 2, report.Pending)
	require.Equal(t, 1, report.Passed)
	require.Len(t, gateway.calls(), 1, "no check runs without the lease")

	stored, err := store.Messages().GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.False(t, stored.Processed)
}

func TestWorkerScenarioRecheckKeepsCheckedFamily(t *testing.T) {
	store := setupWorkerStore(t)
	verdicts := []checker.Verdict{{Passed: true}, {Passed: false, Detail: "syntax error"}}
	gateway := &recordingGateway{verdict: func(checker.Request) (checker.Verdict, error) {
		next := verdicts[0]
		verdicts = verdicts[1:]
		return next, nil
	}}
	worker := newTestWorker(store, gateway, nil, Config{})
	ctx := context.Background()
	key := models.SubmissionKey{TaskID: 7, VariantID: 3, GroupID: 1}

	submit(t, store, key, "x", "1.2.3.4")
	record, err := store.Statuses().GetTaskStatus(ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, record.Status)

	require.Equal(t, 1, worker.RunPass(ctx).Passed)
	record, err = store.Statuses().GetTaskStatus(ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StatusChecked, record.Status)

	submit(t, store, key, "y", "1.2.3.4")
	record, err = store.Statuses().GetTaskStatus(ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StatusCheckedSubmitted, record.Status)

	require.Equal(t, 1, worker.RunPass(ctx).Failed)
	record, err = store.Statuses().GetTaskStatus(ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StatusCheckedFailed, record.Status)
	require.Equal(t, "syntax error", record.ErrorMessage())
	require.Equal(t, "y", record.Code)

	calls := gateway.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "y", calls[1].Code)
}
