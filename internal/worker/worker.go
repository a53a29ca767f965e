// Package worker implements the two job handlers behind the queue: the
// coordinator that fans out per-document jobs, and the post-processor that
// runs one document through the pipeline.
package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/queue"
)

// Worker dispatches dequeued jobs to their handler and records the outcome.
type Worker struct {
	queue       *queue.Manager
	coordinator *Coordinator
	post        *PostProcessor
}

// New creates a worker wired to the queue and both job handlers.
func New(q *queue.Manager, coordinator *Coordinator, post *PostProcessor) *Worker {
	return &Worker{queue: q, coordinator: coordinator, post: post}
}

// Process runs one dequeue-and-process cycle, the unit of work behind the
// external tick. It returns the job it handled, or nil when the queue had
// nothing runnable. Handler errors fail the job and are returned.
func (w *Worker) Process(ctx context.Context) (*model.Job, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "worker: dequeue")
	}
	if job == nil {
		return nil, nil
	}

	zap.L().Info("worker: processing job",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)))

	var result []string
	switch job.Type {
	case model.JobTypeCoordinator:
		result, err = w.coordinator.Run(ctx)
	case model.JobTypePostProcessor:
		result, err = w.post.Run(ctx, job)
	default:
		err = eris.Errorf("worker: unknown job type %q", job.Type)
	}

	if err != nil {
		zap.L().Error("worker: job failed",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Error(err))
		if failErr := w.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
			zap.L().Error("worker: recording job failure failed",
				zap.String("job_id", job.ID),
				zap.Error(failErr))
		}
		return job, err
	}

	if err := w.queue.Complete(ctx, job.ID, result); err != nil {
		return job, eris.Wrap(err, "worker: complete job")
	}

	zap.L().Info("worker: job completed",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Strings("result", result))
	return job, nil
}
