package alert

import "context"

type AlertType string

const (
	AlertTypeUnhealthy         AlertType = "UNHEALTHY"
	AlertTypeRecovery          AlertType = "RECOVERY"
	AlertTypeRevocationBacklog AlertType = "REVOCATION_BACKLOG"
	AlertTypeReconcileFailed   AlertType = "RECONCILE_FAILED"
)

// Alert is one operator notification about a chain.
type Alert struct {
	Type    AlertType
	Chain   string
	Title   string
	Message string
	Fields  map[string]string
}

type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// NoopAlerter drops every alert. It stands in when no channel is configured.
type NoopAlerter struct{}

func (*NoopAlerter) Send(context.Context, Alert) error { return nil }
