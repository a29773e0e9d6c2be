package cli

import (
	"compass/queue"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newWorkerCmd(a *app) *cobra.Command {
	var recoverJobs bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued canvas saves from redis and write them to storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Queue.Backend != "redis" {
				return errors.New("worker needs the redis queue backend (QUEUE_BACKEND=redis)")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := openDeps(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer d.close()

			if recoverJobs {
				if rb, ok := d.broker.(*queue.RedisBroker); ok {
					n, err := rb.Recover(ctx)
					if err != nil {
						return err
					}
					logrus.WithField("jobs", n).Info("Requeued unacknowledged jobs")
				}
			}

			w := queue.NewWorker(d.broker, queue.NewUpsertHandler(d.store), workerOptions(a.cfg.Queue), nil)
			logrus.WithField("concurrency", a.cfg.Queue.Concurrency).Info("Worker started")
			err = w.Run(ctx, shutdownGrace)
			logrus.Info("Worker stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&recoverJobs, "recover", false, "Requeue jobs left in processing by a crashed worker")
	return cmd
}
