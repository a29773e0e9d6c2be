package cli

import (
	"compass/collab"
	"compass/config"
	"compass/handlers/api/ai"
	"compass/handlers/auth"
	"compass/queue"
	"compass/service"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownGrace = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	var worker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas API, auth and collaboration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("worker") {
				a.cfg.Server.Worker = worker
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
			defer stop()
			return serve(ctx, a.cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "The address to listen on")
	cmd.Flags().BoolVar(&worker, "worker", false, "Consume the redis queue inside the server process")
	return cmd
}

// server is everything serve starts, kept together so tests can drive the
// router without a listener.
type server struct {
	deps   *deps
	hub    *collab.Hub
	worker *queue.Worker
	router http.Handler
}

func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	d, err := openDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}

	authn := auth.InitAuth(ctx, cfg.Auth)
	hub := collab.NewHub(authn, d.store)

	canvasSvc := service.NewCanvasService(d.store, d.store, d.cache, d.backend,
		service.WithTTL(cfg.Redis.CacheTTL.Duration()),
		service.WithNotifier(hub),
	)

	s := &server{
		deps: d,
		hub:  hub,
		router: setupRouter(routes{
			auth:     authn,
			canvas:   canvasSvc,
			projects: service.NewProjectService(d.store),
			ai:       ai.HandleGenerate(cfg.AI, nil),
			hub:      hub,
		}),
	}

	// The in-memory broker only exists in this process, so it always gets
	// a consumer here.
	if d.broker != nil && (cfg.Queue.Backend != "redis" || cfg.Server.Worker) {
		s.worker = queue.NewWorker(d.broker, queue.NewUpsertHandler(d.store), workerOptions(cfg.Queue), nil)
		s.worker.Start()
	}
	return s, nil
}

// close stops intake first, then drains queued jobs before the stores they
// write to go away.
func (s *server) close(ctx context.Context) {
	if err := s.deps.backend.Close(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to close persistence backend")
	}
	if s.worker != nil {
		if err := s.worker.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("Worker did not drain before the deadline")
		}
	}
	s.hub.Close()
	s.deps.close()
}

func serve(ctx context.Context, cfg *config.Config) error {
	s, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.Server.Listen).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logrus.WithError(serr).Warn("Server forced to shutdown")
	}
	s.close(shutdownCtx)

	logrus.Info("Server exiting")
	return err
}
