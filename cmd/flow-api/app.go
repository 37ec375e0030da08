package main

import (
	"context"
	"net"
	"net/http"
	"time"

	jobsapi "github.com/BearBump/SellerFlow/internal/api/jobs_api"
	"github.com/BearBump/SellerFlow/internal/broker/kafka"
	"github.com/BearBump/SellerFlow/internal/broker/messages"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type flowAPIOpts struct {
	httpAddr      string
	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type snapshotWarmer interface {
	CacheSnapshot(ctx context.Context, tenantID, jobID string) error
}

func runFlowAPI(ctx context.Context, opts flowAPIOpts, api *jobsapi.JobsAPI, warmers map[string]snapshotWarmer, consumer kafkaConsumer, ready func(ctx context.Context) error, log *zap.Logger) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, lis, apiRouter(api, ready), log)
	})
	if consumer != nil {
		g.Go(func() error {
			log.Info("kafka consumer started", zap.String("topic", opts.topic), zap.String("group", opts.consumerGroup))
			err := consumer.Consume(gctx, jobFinishedHandler(gctx, warmers, log))
			if gctx.Err() != nil {
				return gctx.Err()
			}
			// без событий кэш просто не прогревается, API продолжает работать
			log.Error("kafka consumer stopped", zap.Error(err))
			return nil
		})
	}
	return g.Wait()
}

// jobFinishedHandler кладёт снапшот завершённой задачи в кэш.
// Битые сообщения и ошибки кэша не останавливают чтение топика.
func jobFinishedHandler(ctx context.Context, warmers map[string]snapshotWarmer, log *zap.Logger) func(key, value []byte) error {
	return func(_ []byte, value []byte) error {
		ev, err := messages.DecodeJobFinished(value)
		if err != nil {
			return errors.Wrap(kafka.ErrSkip, err.Error())
		}
		w, ok := warmers[ev.Queue]
		if !ok {
			return errors.Wrapf(kafka.ErrSkip, "unknown queue %q for job %s", ev.Queue, ev.JobID)
		}
		if err := w.CacheSnapshot(ctx, ev.TenantID, ev.JobID); err != nil {
			log.Warn("snapshot not cached", zap.String("job_id", ev.JobID), zap.Error(err))
		}
		return nil
	}
}

func apiRouter(api *jobsapi.JobsAPI, ready func(ctx context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"not ready"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	api.Register(r)
	return r
}

func serveHTTP(ctx context.Context, lis net.Listener, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
