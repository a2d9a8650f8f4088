package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/pkg/metrics"
	"github.com/WessleyAI/wessley-tutor/pkg/natsutil"
)

const (
	// QueueGroup spreads jobs across workers.
	QueueGroup = "tutor-ingest"
	// MaxRetries before a job goes to the dead letter subject.
	MaxRetries = 3
	// JobTimeout bounds one ingestion run inside the worker.
	JobTimeout = 30 * time.Minute
)

// DLQSubject is the dead letter subject for jobs on subject.
func DLQSubject(subject string) string { return subject + ".dlq" }

// Runner ingests one document.
type Runner interface {
	Ingest(ctx context.Context, docID string) (Report, error)
}

// ConsumerOpts wires the job consumer.
type ConsumerOpts struct {
	Subject string
	Metrics *metrics.Tutor
	Logger  *slog.Logger
}

// StartConsumer handles ingestion jobs published on opts.Subject. A failed
// job is re-published with an incremented X-Retry-Count header until
// MaxRetries is reached, then sent to DLQSubject. Failures that another
// attempt cannot fix skip the retries. Jobs sent with Request get a
// JobResult reply.
func StartConsumer(nc *nats.Conn, r Runner, opts ConsumerOpts) (*nats.Subscription, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	record := func(status string) {
		if opts.Metrics != nil {
			opts.Metrics.Job(status)
		}
	}

	return natsutil.Subscribe(nc, opts.Subject, QueueGroup, func(ctx context.Context, msg natsutil.Msg[Job]) {
		job := msg.Value
		retries := msg.Retries()
		log := log.With("doc_id", job.DocID, "retry", retries)

		ctx, cancel := context.WithTimeout(ctx, JobTimeout)
		defer cancel()

		rep, err := r.Ingest(ctx, job.DocID)
		if err == nil {
			record("ok")
			log.Info("ingest job done", "points", rep.Points, "took", rep.Duration)
			if err := msg.Respond(JobResult{Report: &rep}); err != nil {
				log.Warn("ingest job reply failed", "err", err)
			}
			return
		}

		retries++
		log.Error("ingest job failed", "err", err)
		if retries < MaxRetries && retryable(err) {
			record("retry")
			h := nats.Header{}
			h.Set(natsutil.RetryHeader, strconv.Itoa(retries))
			if err := natsutil.Publish(ctx, nc, opts.Subject, job, h); err != nil {
				log.Error("ingest retry publish failed", "err", err)
			}
		} else {
			record("dead")
			dead := dlqMessage{Job: job, Error: err.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject(opts.Subject), dead, nil); err != nil {
				log.Error("ingest DLQ publish failed", "err", err)
			}
		}
		if err := msg.Respond(JobResult{Error: err.Error()}); err != nil {
			log.Warn("ingest job reply failed", "err", err)
		}
	})
}

// Terminal reports whether a job error will fail again however often it is
// retried.
func Terminal(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound)
}
