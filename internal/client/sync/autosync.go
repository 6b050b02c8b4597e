package sync

import (
	"context"

	"github.com/pensieve-app/pensieve/internal/logging"
)

// NetworkType is the last-observed transport class.
type NetworkType string

const (
	NetworkNone     NetworkType = "none"
	NetworkWifi     NetworkType = "wifi"
	NetworkCellular NetworkType = "cellular"
)

// EnvEvent is an environment signal the orchestrator reacts to.
type EnvEvent string

const (
	EventCameOnline     EnvEvent = "came_online"
	EventWentOffline    EnvEvent = "went_offline"
	EventForegrounded   EnvEvent = "foregrounded"
	EventBackgrounded   EnvEvent = "backgrounded"
	EventNetworkChanged EnvEvent = "network_changed"
)

// ShouldAutoSync is the whole auto-sync policy as a pure function over
// (preference, network type, event): no timers, no hidden state.
//
// A sync is warranted when connectivity (re)appears or the app returns to the
// foreground while online, unless the user restricted syncing to Wi-Fi and
// the current network is not Wi-Fi.
func ShouldAutoSync(wifiOnly bool, network NetworkType, event EnvEvent) bool {
	switch event {
	case EventCameOnline, EventForegrounded, EventNetworkChanged:
	default:
		return false
	}
	if network == NetworkNone {
		return false
	}
	if wifiOnly && network != NetworkWifi {
		return false
	}
	return true
}

// Orchestrator feeds environment signals through ShouldAutoSync and triggers
// sync cycles. Its only state is the preference accessor and the last-known
// network type.
type Orchestrator struct {
	svc         *Service
	wifiOnly    func() bool
	log         logging.Logger
	lastNetwork NetworkType
}

// NewOrchestrator builds an orchestrator. wifiOnly is read per event so the
// preference can change while the app runs.
func NewOrchestrator(svc *Service, wifiOnly func() bool, log logging.Logger) *Orchestrator {
	if wifiOnly == nil {
		wifiOnly = func() bool { return false }
	}
	return &Orchestrator{
		svc:         svc,
		wifiOnly:    wifiOnly,
		log:         logging.OrNoop(log),
		lastNetwork: NetworkNone,
	}
}

// HandleEvent records the network transition and, when the policy says so,
// runs a high-priority sync. A cycle already in flight is not an error: the
// single-flight service simply rejects the duplicate.
func (o *Orchestrator) HandleEvent(ctx context.Context, event EnvEvent, network NetworkType) {
	o.lastNetwork = network

	if !ShouldAutoSync(o.wifiOnly(), network, event) {
		o.log.Debug(ctx, "auto-sync skipped", "event", event, "network", network, "wifiOnly", o.wifiOnly())
		return
	}

	if _, err := o.svc.Sync(ctx, Options{Priority: PriorityHigh}); err != nil {
		o.log.Debug(ctx, "auto-sync not started", "reason", err)
	}
}

// LastNetwork returns the most recently observed network type.
func (o *Orchestrator) LastNetwork() NetworkType { return o.lastNetwork }
