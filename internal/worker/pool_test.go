package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/horuscamacho/noticias-pachuca-sub006/internal/database"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/events"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/logger"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/metrics"
	"github.com/horuscamacho/noticias-pachuca-sub006/internal/queue"
)

func TestPoolStopClearsRunningState(t *testing.T) {
	db, _ := newMockDB(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	jobs := database.NewJobRepository(db)
	tracker := metrics.NewTracker(prometheus.NewRegistry())
	dispatcher := queue.NewDispatcher(jobs, rdb, tracker, logger.NewNopLogger())
	ctx := context.Background()
	if err := dispatcher.SetupTopology(ctx); err != nil {
		t.Fatalf("SetupTopology() error = %v", err)
	}

	pool := NewPool(jobs, rdb, dispatcher, Registry{},
		events.NewPublisher(rdb, logger.NewNopLogger()), tracker, logger.NewNopLogger(), "test")

	if pool.IsRunning() {
		t.Fatal("pool must not report running before Start")
	}
	pool.Start(ctx)
	if !pool.IsRunning() {
		t.Fatal("pool must report running after Start")
	}

	pool.Stop()
	if pool.IsRunning() {
		t.Error("pool must not report running after Stop")
	}
	// A second Stop on an already stopped pool must be a no-op.
	pool.Stop()
}
