package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/domain"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/orchestrator"
)

type recordedCycle struct {
	stage    domain.Stage
	outletID string
	priority int
}

type fakeRunner struct {
	calls   []recordedCycle
	failAt  domain.Stage
	failErr error
}

func (f *fakeRunner) run(stage domain.Stage, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error) {
	f.calls = append(f.calls, recordedCycle{stage: stage, outletID: outletID, priority: opts.Priority})
	if f.failAt == stage && f.failErr != nil {
		return &orchestrator.CycleResult{OutletID: outletID, Stage: stage}, f.failErr
	}
	return &orchestrator.CycleResult{OutletID: outletID, Stage: stage, Success: true, JobsCreated: 1}, nil
}

func (f *fakeRunner) RunExtractionCycle(_ context.Context, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error) {
	return f.run(domain.StageExtraction, outletID, opts)
}

func (f *fakeRunner) RunGenerationCycle(_ context.Context, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error) {
	return f.run(domain.StageGeneration, outletID, opts)
}

func (f *fakeRunner) RunPublishingCycle(_ context.Context, outletID string, opts orchestrator.CycleOptions) (*orchestrator.CycleResult, error) {
	return f.run(domain.StagePublishing, outletID, opts)
}

func newTestScheduler(t *testing.T, runner CycleRunner) (*Scheduler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	outlets := database.NewOutletRepository(sqlx.NewDb(db, "sqlmock"))
	tracker := metrics.NewTracker(prometheus.NewRegistry())
	return New(outlets, runner, tracker, logger.NewNopLogger(), Config{}), mock
}

func outletColumns() []string {
	return []string{
		"id", "name", "base_url", "is_active", "default_template_id",
		"extraction_frequency_minutes", "generation_frequency_minutes",
		"publishing_frequency_minutes", "last_extraction_run",
		"last_generation_run", "last_publishing_run", "created_at", "updated_at",
	}
}

func TestRunStageOnlyRunsDueOutlets(t *testing.T) {
	runner := &fakeRunner{}
	s, mock := newTestScheduler(t, runner)

	now := time.Now().UTC()
	overdue := now.Add(-90 * time.Minute)
	fresh := now.Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM outlets WHERE is_active").
		WillReturnRows(sqlmock.NewRows(outletColumns()).
			AddRow("outlet-due", "Due", "https://due.mx", true, "rewrite-news",
				60, 120, 240, overdue, nil, nil, now, now).
			AddRow("outlet-fresh", "Fresh", "https://fresh.mx", true, "rewrite-news",
				60, 120, 240, fresh, nil, nil, now, now))

	s.runStage(domain.StageExtraction)

	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.calls))
	}
	call := runner.calls[0]
	if call.outletID != "outlet-due" || call.stage != domain.StageExtraction {
		t.Errorf("unexpected cycle call %+v", call)
	}
	if call.priority != defaultCyclePriority {
		t.Errorf("priority = %d, want %d", call.priority, defaultCyclePriority)
	}
}

func TestRunStageNeverRunOutletIsDue(t *testing.T) {
	runner := &fakeRunner{}
	s, mock := newTestScheduler(t, runner)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM outlets WHERE is_active").
		WillReturnRows(sqlmock.NewRows(outletColumns()).
			AddRow("outlet-new", "New", "https://new.mx", true, "rewrite-news",
				60, 120, 240, nil, nil, nil, now, now))

	s.runStage(domain.StageGeneration)

	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.calls))
	}
	if runner.calls[0].stage != domain.StageGeneration {
		t.Errorf("stage = %s", runner.calls[0].stage)
	}
}

func TestForceScheduleRunsAllStagesAtMaxPriority(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestScheduler(t, runner)

	results, err := s.ForceSchedule(context.Background(), "outlet-1")
	if err != nil {
		t.Fatalf("ForceSchedule() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	wantOrder := domain.Stages()
	for i, call := range runner.calls {
		if call.stage != wantOrder[i] {
			t.Errorf("call %d stage = %s, want %s", i, call.stage, wantOrder[i])
		}
		if call.priority != forcedCyclePriority {
			t.Errorf("call %d priority = %d, want %d", i, call.priority, forcedCyclePriority)
		}
		if call.outletID != "outlet-1" {
			t.Errorf("call %d outlet = %s", i, call.outletID)
		}
	}
}

func TestForceScheduleStopsOnError(t *testing.T) {
	runner := &fakeRunner{failAt: domain.StageGeneration, failErr: errors.New("boom")}
	s, _ := newTestScheduler(t, runner)

	_, err := s.ForceSchedule(context.Background(), "outlet-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(runner.calls) != 2 {
		t.Fatalf("runner called %d times, want 2 (stopped after failure)", len(runner.calls))
	}
}
