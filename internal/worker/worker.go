package worker

import (
	"context"
	"fmt"
	"time"

	"retail-backoffice/internal/broker"
	"retail-backoffice/internal/service"
	"retail-backoffice/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CompensationWorker retries credits for failed placements announced on the
// order events topic.
type CompensationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCompensationWorker creates a new compensation worker
func NewCompensationWorker(consumer *broker.Consumer, reconciler *service.Reconciler) *CompensationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnCompensationRequired(reconciler.HandleCompensationRequired)

	return &CompensationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is done
func (w *CompensationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting compensation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CompensationWorker) Stop() error {
	w.logger.Info("Stopping compensation worker")
	return w.consumer.Close()
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Reconciliation runs the reconciler on a cron schedule.
type Reconciliation struct {
	sched      *cron.Cron
	reconciler *service.Reconciler
	timeout    time.Duration
	logger     *zap.Logger
}

// NewReconciliation schedules reconciler passes. A pass still running when
// the next one is due causes that one to be skipped.
func NewReconciliation(schedule string, reconciler *service.Reconciler, timeout time.Duration) (*Reconciliation, error) {
	logger := util.GetLogger()
	r := &Reconciliation{
		sched: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		reconciler: reconciler,
		timeout:    timeout,
		logger:     logger,
	}
	if _, err := r.sched.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reconciliation) Start() {
	r.logger.Info("Starting reconciliation scheduler")
	r.sched.Start()
}

// Stop waits for a running pass to finish or ctx to expire.
func (r *Reconciliation) Stop(ctx context.Context) {
	r.logger.Info("Stopping reconciliation scheduler")
	select {
	case <-r.sched.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce makes a single reconciliation pass.
func (r *Reconciliation) RunOnce() {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("Reconciliation panicked", zap.Any("panic", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.reconciler.Run(ctx); err != nil {
		r.logger.Error("Reconciliation pass failed", zap.Error(err))
	}
}
