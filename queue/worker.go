package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Handler persists one job. Errors wrapped with Retryable are attempted
// again; any other error fails the job immediately.
type Handler func(ctx context.Context, job Job) error

type Options struct {
	Concurrency   int
	RatePerSecond float64
	Attempts      int
	Backoff       time.Duration
}

func DefaultOptions() Options {
	return Options{
		Concurrency:   5,
		RatePerSecond: 10,
		Attempts:      3,
		Backoff:       time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = d.RatePerSecond
	}
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.Backoff <= 0 {
		o.Backoff = d.Backoff
	}
	return o
}

// Worker pops jobs from a broker with bounded concurrency and a global rate
// limit shared by all consumers.
type Worker struct {
	broker  Broker
	handle  Handler
	opts    Options
	limiter *rate.Limiter
	log     logrus.FieldLogger

	// abort cancels pops and in-flight handlers when shutdown runs out of
	// time.
	abort     context.Context
	abortFn   context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

func NewWorker(broker Broker, handle Handler, opts Options, log logrus.FieldLogger) *Worker {
	opts = opts.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	burst := int(opts.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	abort, abortFn := context.WithCancel(context.Background())
	return &Worker{
		broker:  broker,
		handle:  handle,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		log:     log.WithField("queue", Name),
		abort:   abort,
		abortFn: abortFn,
	}
}

// Start launches the consumers. Calling it more than once has no effect.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		w.log.WithFields(logrus.Fields{
			"concurrency": w.opts.Concurrency,
			"rate":        w.opts.RatePerSecond,
		}).Info("Starting canvas worker")
		for i := 0; i < w.opts.Concurrency; i++ {
			w.wg.Add(1)
			go w.loop()
		}
	})
}

// Run starts the worker and blocks until ctx is done, then shuts down,
// giving in-flight jobs up to grace to finish.
func (w *Worker) Run(ctx context.Context, grace time.Duration) error {
	w.Start()
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return w.Shutdown(sctx)
}

// Shutdown closes the broker so no new jobs are handed out, then waits for
// consumers to finish what they hold. If ctx expires first, in-flight
// handlers are cancelled and ctx.Err() is returned.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.log.Info("Shutting down canvas worker")
	w.broker.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.abortFn()
		return nil
	case <-ctx.Done():
		w.abortFn()
		<-done
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		if err := w.limiter.Wait(w.abort); err != nil {
			return
		}
		job, err := w.broker.Pop(w.abort)
		if err != nil {
			if errors.Is(err, ErrClosed) || w.abort.Err() != nil {
				return
			}
			w.log.WithError(err).Error("Failed to pop job")
			select {
			case <-w.abort.Done():
				return
			case <-time.After(w.opts.Backoff):
			}
			continue
		}
		w.process(job)
	}
}

func (w *Worker) process(job Job) {
	ctx := w.abort
	log := w.log.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"project_id": job.ProjectID,
		"user_id":    job.UserID,
	})

	delay := w.opts.Backoff
	var err error
	for attempt := 1; attempt <= w.opts.Attempts; attempt++ {
		job.Attempts = attempt
		if err = w.handle(ctx, job); err == nil {
			break
		}
		if !IsRetryable(err) || attempt == w.opts.Attempts || ctx.Err() != nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Canvas persist failed, retrying")
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			delay *= 2
		}
	}

	ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err == nil {
		if aerr := w.broker.Complete(ackCtx, job); aerr != nil {
			log.WithError(aerr).Error("Failed to acknowledge job")
		}
		log.WithField("attempts", job.Attempts).Debug("Canvas persisted")
		return
	}

	log.WithError(err).WithField("attempts", job.Attempts).Error("Canvas persist failed")
	if aerr := w.broker.Fail(ackCtx, job, err); aerr != nil {
		log.WithError(aerr).Error("Failed to record failed job")
	}
}
