package tenant

import "time"

// Observer receives resolution and cache events. The metrics package
// provides a Prometheus implementation.
type Observer interface {
	StrategyResult(strategy string, matched bool)
	ContextCache(hit bool)
	Rejected(reason string)
	ResolveDuration(d time.Duration)
}

// Rejection reasons reported to Observer.Rejected.
const (
	RejectNotResolved = "not_resolved"
	RejectInactive    = "inactive"
	RejectInternal    = "internal"
)

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) StrategyResult(string, bool)   {}
func (NopObserver) ContextCache(bool)             {}
func (NopObserver) Rejected(string)               {}
func (NopObserver) ResolveDuration(time.Duration) {}
