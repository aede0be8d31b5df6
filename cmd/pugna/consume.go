package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/kafka"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/startup"
)

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Reconcile raw records from Kafka until interrupted",
		Long: "Consumes raw fight records from the input topic in batches, reconciles each batch " +
			"and commits offsets afterwards. Serves Prometheus metrics and health checks while running.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(cmd.Context())
		},
	}
}

func runConsume(ctx context.Context) error {
	return withApp(ctx, func(a *app) error {
		totals := &batchTotals{}
		var consumer *kafka.Consumer
		var server *echo.Echo

		boot := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)
		boot.AddDependency(startup.Func{
			Name:    "postgres",
			OnStart: func(ctx context.Context) error { return a.openStore(ctx, false) },
		})
		boot.AddDependency(startup.Func{
			Name:    "locker",
			OnStart: a.openLocker,
		})
		boot.AddDependency(startup.Func{
			Name:    "sinks",
			OnStart: a.openSinks,
		})
		boot.AddDependency(startup.Func{
			Name: "http",
			OnStart: func(ctx context.Context) error {
				server = newHTTPServer(a)
				go func() {
					if err := server.Start(a.cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.WithError(err).Error("HTTP server stopped")
					}
				}()
				a.logger.Infof("Serving metrics and health checks on %s", a.cfg.MetricsAddr)
				return nil
			},
			OnStop: func(ctx context.Context) error { return server.Shutdown(ctx) },
		})
		boot.AddDependency(startup.Func{
			Name:     "consumer",
			Requires: []string{"postgres", "locker", "sinks"},
			OnStart: func(ctx context.Context) error {
				engine, err := a.engine()
				if err != nil {
					return err
				}
				consumer = kafka.NewConsumer(a.cfg.Consumer(), a.logger, newBatchHandler(engine, a.logger, totals))
				if err := consumer.Start(ctx); err != nil {
					return err
				}
				a.health.SetReady(true)
				return nil
			},
			OnStop: func(context.Context) error {
				a.health.SetReady(false)
				return consumer.Stop()
			},
		})

		if err := boot.Start(ctx); err != nil {
			return fmt.Errorf("starting consumer: %w", err)
		}

		<-ctx.Done()
		a.logger.Info("Shutting down consumer")

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		stopErr := boot.Stop(stopCtx)

		report := totals.snapshot()
		a.logger.WithFields(map[string]any{
			"total":       report.Total,
			"linked":      report.Linked,
			"created":     report.Created,
			"queued":      report.Queued,
			"revalidated": report.Revalidated,
			"skipped":     report.Skipped,
			"failed":      report.Failed,
		}).Info("Consumer stopped")

		return stopErr
	})
}

// newHTTPServer serves /metrics and the health routes
func newHTTPServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware(a.cfg.AppName, otelecho.WithSkipper(func(c echo.Context) bool {
		return c.Path() == "/metrics"
	})))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	a.health.RegisterRoutes(e)
	return e
}

// batchTotals accumulates reports across consumer batches
type batchTotals struct {
	mu     sync.Mutex
	report reconcile.Report
}

func (t *batchTotals) add(report *reconcile.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Merge(&reconcile.Report{
		Total:           report.Total,
		Processed:       report.Processed,
		Linked:          report.Linked,
		Created:         report.Created,
		Queued:          report.Queued,
		Revalidated:     report.Revalidated,
		Conflicts:       report.Conflicts,
		Skipped:         report.Skipped,
		Failed:          report.Failed,
		ContestsCreated: report.ContestsCreated,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
	})
}

func (t *batchTotals) snapshot() reconcile.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report
}

// recordBatcher is the part of the engine the consumer drives
type recordBatcher interface {
	ProcessBatch(ctx context.Context, records []models.RawRecord) (*reconcile.Report, error)
}

// newBatchHandler reconciles each Kafka batch as one engine batch. Undecodable
// messages are logged and dropped. A cancelled batch is left uncommitted and
// redelivered; reprocessing committed records only revalidates them.
func newBatchHandler(engine recordBatcher, logger ectologger.Logger, totals *batchTotals) kafka.BatchHandler {
	return func(ctx context.Context, batch []*kafka.IncomingMessage) error {
		records := make([]models.RawRecord, 0, len(batch))
		for _, msg := range batch {
			record, err := msg.DecodeRawRecord()
			if err != nil {
				logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("Dropping undecodable raw record")
				continue
			}
			records = append(records, record)
		}
		if len(records) == 0 {
			return nil
		}

		report, err := engine.ProcessBatch(ctx, records)
		if report != nil {
			totals.add(report)
			for _, issue := range report.Issues {
				logger.WithContext(ctx).WithFields(map[string]any{
					"record_id": issue.RecordID,
					"kind":      issue.Kind,
				}).Warn(issue.Reason)
			}
		}
		return err
	}
}
