package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spotline/spotline/internal/persistence"
	"github.com/spotline/spotline/internal/scoring"
)

// Worker consumes scoring jobs one at a time. Single consumer by design:
// the pipeline's throttling lives in the orchestrator's pacing, and one
// spot never has two model calls in flight.
type Worker struct {
	queue Queue
	orch  *scoring.Orchestrator
	store *persistence.Store

	// now/sleep are swapped in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker builds a worker draining q into the orchestrator.
func NewWorker(q Queue, orch *scoring.Orchestrator, store *persistence.Store) *Worker {
	return &Worker{
		queue: q,
		orch:  orch,
		store: store,
		now:   time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("failed to dequeue scoring job")
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	if wait := job.NotBefore.Sub(w.now()); wait > 0 {
		if err := w.sleep(ctx, wait); err != nil {
			return
		}
	}

	logger := log.With().
		Str("job_id", job.ID).
		Str("spot_id", job.SpotID).
		Int64("scrape_ts", job.ScrapeTS).
		Bool("personalized", job.Personalized).
		Logger()

	if !job.Personalized {
		summary, err := w.orch.ScoreForecastSlots(ctx, job.SpotID, job.ScrapeTS, job.SlotIDs)
		if err != nil {
			logger.Error().Err(err).Msg("system scoring job failed")
			return
		}
		logger.Info().Int("success", summary.Success).Int("failure", summary.Failure).Msg("system scoring job done")
		return
	}

	userIDs := job.UserIDs
	if len(userIDs) == 0 {
		var err error
		userIDs, err = w.store.Prompts.ListPersonalizedUsers(ctx, job.SpotID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to resolve personalized users")
			return
		}
	}
	if len(userIDs) == 0 {
		logger.Debug().Msg("no personalized users for spot, nothing to do")
		return
	}

	summary, err := w.orch.ScoreForecastSlotsForUsers(ctx, job.SpotID, job.ScrapeTS, job.SlotIDs, userIDs)
	if err != nil {
		logger.Error().Err(err).Msg("personalized scoring job failed")
		return
	}
	logger.Info().Int("success", summary.Success).Int("failure", summary.Failure).Msg("personalized scoring job done")
}
