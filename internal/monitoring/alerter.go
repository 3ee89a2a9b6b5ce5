package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spreadwatch/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertStaleStreak    AlertType = "stale_streak"
	AlertSourceDegraded AlertType = "source_degraded"
)

// minSourceAttempts is the number of attempts a source needs in the window
// before its failure rate is judged.
const minSourceAttempts = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check run failure rate.
	if snap.RunsTotal >= 5 && a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d runs in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, snap.RunsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"total":        snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	// Check for consecutive runs serving baseline values only.
	if a.cfg.StaleStreakThreshold > 0 && snap.StaleStreak >= a.cfg.StaleStreakThreshold {
		details := map[string]any{
			"streak":    snap.StaleStreak,
			"threshold": a.cfg.StaleStreakThreshold,
		}
		since := "the lookback window"
		if !snap.LastLiveAt.IsZero() {
			details["last_live_at"] = snap.LastLiveAt
			since = snap.LastLiveAt.Format(time.RFC3339)
		}
		alerts = append(alerts, Alert{
			Type:     AlertStaleStreak,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d consecutive runs without live yields (no live data since %s)",
				snap.StaleStreak, since,
			),
			Details:   details,
			Timestamp: now,
		})
	}

	// Check individual sources.
	if a.cfg.SourceFailureRateThreshold > 0 {
		for _, h := range snap.Sources {
			if h.Attempts < minSourceAttempts || h.FailRate < a.cfg.SourceFailureRateThreshold {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     AlertSourceDegraded,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Source %s failing: %d of %d attempts failed or blocked in last %dh",
					h.Source, h.Failed+h.Blocked, h.Attempts, snap.LookbackHours,
				),
				Details: map[string]any{
					"source":    h.Source,
					"attempts":  h.Attempts,
					"failed":    h.Failed,
					"blocked":   h.Blocked,
					"fail_rate": h.FailRate,
					"threshold": a.cfg.SourceFailureRateThreshold,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
