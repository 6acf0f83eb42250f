package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Redemption outcomes.
const (
	OutcomeDelivered          = "delivered"
	OutcomeInvalidLink        = "invalid_link"
	OutcomeMembershipRequired = "membership_required"
	OutcomeQuotaExceeded      = "quota_exceeded"
	OutcomeError              = "error"
)

// Deletion outcomes.
const (
	DeletionDeleted = "deleted"
	DeletionFailed  = "failed"
)

var (
	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatedrop_redemptions_total",
		Help: "Redemption attempts by outcome",
	}, []string{"outcome"})

	ItemsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatedrop_items_delivered_total",
		Help: "Content items sent to users",
	})

	ItemsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatedrop_items_skipped_total",
		Help: "Content items that failed to send",
	})

	Deletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatedrop_deletions_total",
		Help: "Executed deletion obligations by outcome",
	}, []string{"outcome"})

	PendingDeletions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gatedrop_pending_deletions",
		Help: "Deletion obligations waiting for their deadline",
	})

	BroadcastMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatedrop_broadcast_messages_total",
		Help: "Broadcast sends by outcome",
	}, []string{"outcome"})
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		Redemptions,
		ItemsDelivered,
		ItemsSkipped,
		Deletions,
		PendingDeletions,
		BroadcastMessages,
	)
}

// ObserveRedemption counts one redemption attempt.
func ObserveRedemption(outcome string, delivered, skipped int) {
	Redemptions.WithLabelValues(outcome).Inc()
	ItemsDelivered.Add(float64(delivered))
	ItemsSkipped.Add(float64(skipped))
}

// ObserveDeletion counts one executed obligation.
func ObserveDeletion(err error) {
	if err != nil {
		Deletions.WithLabelValues(DeletionFailed).Inc()
		return
	}
	Deletions.WithLabelValues(DeletionDeleted).Inc()
}

// ObserveBroadcast counts one broadcast send.
func ObserveBroadcast(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	BroadcastMessages.WithLabelValues(status).Inc()
}

// StartServer serves /metrics on addr until ctx is done.
func StartServer(ctx context.Context, log *slog.Logger, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics: graceful shutdown failed", "error", err)
		}
	}()

	go func() {
		log.Info("metrics: server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics: server stopped", "error", err)
		}
	}()
}
