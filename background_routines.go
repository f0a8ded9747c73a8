package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/satstash/satstash/lib/service"
)

// StartBackgroundRoutines launches everything that has to run next to the
// HTTP server: the invoice settlement stream, tracking of payments that
// were in flight at the last shutdown, the expiry sweep for stuck pending
// payments, webhook delivery and the periodic ledger balance probe.
func StartBackgroundRoutines(svc *service.SatstashService, backgroundCtx context.Context) {
	go func() {
		err := svc.InvoiceUpdateSubscription(backgroundCtx)
		if err != nil && err != context.Canceled {
			svc.Logger.Fatalf("Invoice subscription died: %v", err)
		}
	}()

	if err := svc.StartTrackingPendingPayments(backgroundCtx); err != nil {
		svc.Logger.Fatalf("Failed to re-arm pending payment tracking: %v", err)
	}

	go func() {
		ticker := time.NewTicker(time.Duration(svc.Config.PendingSweepIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-backgroundCtx.Done():
				return
			case <-ticker.C:
				if err := svc.CheckPendingOutgoingPayments(backgroundCtx); err != nil {
					svc.Logger.Errorf("Pending payment sweep failed: %v", err)
					sentry.CaptureException(err)
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Duration(svc.Config.BalanceProbeIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-backgroundCtx.Done():
				return
			case <-ticker.C:
				if err := svc.CheckLedgerBalance(backgroundCtx); err != nil {
					svc.Logger.Errorf("Ledger balance probe failed: %v", err)
					sentry.CaptureException(err)
				}
			}
		}
	}()

	if svc.Config.WebhookUrl != "" {
		go svc.StartWebhookSubscription(backgroundCtx, svc.Config.WebhookUrl)
	}
}
