// Package jobs holds the background work that runs next to the http server.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultReconcileSchedule runs the follow graph reconciliation every ten minutes.
const DefaultReconcileSchedule = "@every 10m"

// GraphReconciler repairs follow edges that are only recorded on one side.
// crud.FollowService implements it.
type GraphReconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// Reconciler periodically reconciles the whole follow graph, picking up edges a
// partially failed follow or unfollow left behind. A run that is still going when
// the next one is due makes that next one skip.
type Reconciler struct {
	graph GraphReconciler
	cron  *cron.Cron
	log   logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewReconciler returns a Reconciler running on schedule, which is any robfig/cron
// expression such as "@every 10m" or "0 3 * * *". An empty schedule means DefaultReconcileSchedule.
func NewReconciler(graph GraphReconciler, schedule string, log logrus.FieldLogger) (*Reconciler, error) {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	log = log.WithField("job", "reconcile_follows")
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		graph:  graph,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(log)),
			cron.SkipIfStillRunning(cron.PrintfLogger(log)),
		)),
	}
	if _, err := r.cron.AddFunc(schedule, func() { _, _ = r.RunOnce(r.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins running on schedule in the background.
func (r *Reconciler) Start() {
	r.log.Info("follow graph reconciliation started")
	r.cron.Start()
}

// Stop cancels a running reconciliation and waits for it to return.
func (r *Reconciler) Stop() {
	r.once.Do(func() {
		r.cancel()
		<-r.cron.Stop().Done()
		r.log.Info("follow graph reconciliation stopped")
	})
}

// RunOnce reconciles the graph right away and returns the number of repaired pairs.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	repaired, err := r.graph.ReconcileAll(ctx)
	log := r.log.WithFields(logrus.Fields{
		"repaired": repaired,
		"took":     time.Since(start).String(),
	})
	if err != nil {
		log.WithError(err).Error("follow graph reconciliation failed")
		return repaired, err
	}
	if repaired > 0 {
		log.Warn("repaired half written follow edges")
	} else {
		log.Debug("follow graph is consistent")
	}
	return repaired, nil
}
