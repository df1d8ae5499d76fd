/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package executor

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/ledger"
	"github.com/salesintel/decisionengine/pkg/ledger/models"
	"github.com/salesintel/decisionengine/pkg/obsmetrics"
)

// logJob is one unit of ledger work: either a decision (with its optional
// shadow comparison already attached) or an A/B assignment.
type logJob struct {
	decision     *models.DecisionRecord
	abAssignment *models.ABAssignment
}

// logQueue is the lock-free, bounded path every ledger write goes through
// (spec §5 "ledger writer uses a lock-free queue with backpressure"). A
// full queue drops the secondary comparison first, then the whole decision
// log as a last resort, rather than ever blocking the caller that produced
// it.
type logQueue struct {
	repo *ledger.Repository
	log  logging.Fields
	jobs chan logJob
	cb   *gobreaker.CircuitBreaker
	wg   sync.WaitGroup
}

func newLogQueue(repo *ledger.Repository, log logging.Fields, capacity, workers int) *logQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	if workers <= 0 {
		workers = 4
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger-writer",
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	q := &logQueue{
		repo: repo,
		log:  log,
		jobs: make(chan logJob, capacity),
		cb:   cb,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	return q
}

func (q *logQueue) run() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(job)
	}
}

func (q *logQueue) process(job logJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = q.cb.Execute(func() (any, error) {
		if job.decision != nil {
			return nil, q.repo.AppendDecision(ctx, job.decision)
		}
		return nil, q.repo.AppendABAssignment(ctx, job.abAssignment)
	})
}

// enqueueDecision attempts to enqueue rec. If the queue is full and rec
// carries a shadow comparison, the comparison is dropped and the decision
// is retried without it; if the queue is still full (or rec never carried
// one), the decision log itself is dropped. Either drop increments the
// dropped-log counter; the caller that produced rec is never blocked or
// informed.
func (q *logQueue) enqueueDecision(rec *models.DecisionRecord) {
	select {
	case q.jobs <- logJob{decision: rec}:
		return
	default:
	}

	if rec.ShadowComparison != nil {
		obsmetrics.RecordDroppedLog()
		degraded := *rec
		degraded.ShadowComparison = nil
		select {
		case q.jobs <- logJob{decision: &degraded}:
			return
		default:
		}
	}

	obsmetrics.RecordDroppedLog()
}

// enqueueABAssignment enqueues a, dropping it under backpressure rather
// than blocking.
func (q *logQueue) enqueueABAssignment(a *models.ABAssignment) {
	select {
	case q.jobs <- logJob{abAssignment: a}:
	default:
		obsmetrics.RecordDroppedLog()
	}
}

// shutdown stops accepting new jobs and waits for in-flight workers to
// drain, up to ctx's deadline.
func (q *logQueue) shutdown(ctx context.Context) error {
	close(q.jobs)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
