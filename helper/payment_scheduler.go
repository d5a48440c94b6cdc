package helper

import (
	"context"
	"log/slog"
	"time"

	"marketplace/ledger"

	"github.com/go-co-op/gocron/v2"
)

// ReportStaleSessions logs every INITIATED payment older than after. Such a
// payment usually means the gateway's notification never reached us.
func ReportStaleSessions(ctx context.Context, l *ledger.Ledger, after time.Duration, logger *slog.Logger) int {
	cutoff := time.Now().Add(-after)
	payments, err := l.StaleInitiated(ctx, cutoff)
	if err != nil {
		logger.ErrorContext(ctx, "payment.stale.scan_failed", "err", err)
		return 0
	}
	for _, p := range payments {
		logger.WarnContext(ctx, "payment.session.stale",
			"payment_id", p.ID, "order_id", p.OrderID,
			"gateway_order_id", p.GatewayOrderID, "created_at", p.CreatedAt)
	}
	if len(payments) > 0 {
		logger.InfoContext(ctx, "payment.stale.report", "count", len(payments), "older_than", after)
	}
	return len(payments)
}

// StartStaleSessionScheduler runs ReportStaleSessions every interval until the
// returned scheduler is shut down.
func StartStaleSessionScheduler(l *ledger.Ledger, after, interval time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ReportStaleSessions(context.Background(), l, after, logger)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	s.Start()
	return s, nil
}
