package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/SellerFlow/config"
	"github.com/BearBump/SellerFlow/internal/services/combinedjobs"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	workers []*combinedjobs.Worker
	cfg     *config.Config
	ready   func(ctx context.Context) error
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: workerRouter(opts), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func workerRouter(opts workerHTTPOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		out := make([]combinedjobs.Stats, 0, len(opts.workers))
		for _, wk := range opts.workers {
			out = append(out, wk.Stats())
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "config not wired"})
			return
		}
		// без секретов: только рабочие настройки
		c := opts.cfg
		writeJSON(w, http.StatusOK, map[string]any{
			"combinedQueue":              c.Flow.CombinedQueueName,
			"waitingQueue":               c.Flow.WaitingQueueName,
			"queueSchema":                c.Flow.QueueSchema,
			"pollIntervalSeconds":        c.Flow.WorkerPollIntervalSeconds,
			"concurrency":                c.Flow.WorkerConcurrency,
			"batchSize":                  c.Flow.WorkerBatchSize,
			"jobExpireSeconds":           c.Flow.JobExpireSeconds,
			"jobRetentionSeconds":        c.Flow.JobRetentionSeconds,
			"maintenanceIntervalSeconds": c.Flow.MaintenanceIntervalSeconds,
			"marketplaceMode":            c.Marketplace.Mode,
			"rateLimitPerMinute":         c.Marketplace.RateLimitPerMinute,
			"latestCount":                c.Aggregation.LatestCount,
			"waitingCount":               c.Aggregation.WaitingCount,
			"orderLookbackDays":          c.Aggregation.OrderLookbackDays,
			"maxPages":                   c.Aggregation.MaxPages,
			"imageRetries":               c.Documents.ImageRetries,
			"telegramEnabled":            c.Telegram.BotToken != "",
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		queue := r.URL.Query().Get("queue")
		triggered := []string{}
		for _, wk := range opts.workers {
			name := wk.Stats().Queue
			if queue != "" && queue != name {
				continue
			}
			wk.Trigger()
			triggered = append(triggered, name)
		}
		if len(triggered) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown queue"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"triggered": triggered})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
