package engine

import (
	"fmt"

	"github.com/roach88/blocksync/internal/category"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventPause stops filtering until EventResume.
	EventPause EventType = iota + 1
	// EventResume restores filtering from the persisted mode.
	EventResume
	// EventSwitchToDefault persists the default mode.
	EventSwitchToDefault
	// EventSwitchToCustom persists the custom mode.
	EventSwitchToCustom
	// EventTrustDomain adds Event.Domain to the trusted set.
	EventTrustDomain
	// EventUntrustDomain removes Event.Domain from the trusted set.
	EventUntrustDomain
	// EventActiveDomainChanged records Event.Domain as the active tab domain.
	EventActiveDomainChanged
	// EventSetCategories replaces the custom category set with
	// Event.Categories.
	EventSetCategories

	// eventRefresh forces a resync of the current state.
	eventRefresh
	// eventFlush is a barrier that carries no state change.
	eventFlush
)

// String implements the fmt.Stringer interface for EventType.
func (t EventType) String() (s string) {
	switch t {
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventSwitchToDefault:
		return "switch_to_default"
	case EventSwitchToCustom:
		return "switch_to_custom"
	case EventTrustDomain:
		return "trust_domain"
	case EventUntrustDomain:
		return "untrust_domain"
	case EventActiveDomainChanged:
		return "active_domain_changed"
	case EventSetCategories:
		return "set_categories"
	case eventRefresh:
		return "refresh"
	case eventFlush:
		return "flush"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a single inbound state change.
type Event struct {
	// Type is the kind of the event.
	Type EventType

	// Domain is the normalized hostname for the domain events.
	Domain string

	// Categories is the new custom set for EventSetCategories.
	Categories []category.ID

	// done is closed once a barrier event has been processed.
	done chan struct{}
}

// Pause returns a Pause event.
func Pause() Event { return Event{Type: EventPause} }

// Resume returns a Resume event.
func Resume() Event { return Event{Type: EventResume} }

// SwitchToDefault returns a SwitchToDefault event.
func SwitchToDefault() Event { return Event{Type: EventSwitchToDefault} }

// SwitchToCustom returns a SwitchToCustom event.
func SwitchToCustom() Event { return Event{Type: EventSwitchToCustom} }

// TrustDomain returns a TrustDomain event for d.
func TrustDomain(d string) Event { return Event{Type: EventTrustDomain, Domain: d} }

// UntrustDomain returns an UntrustDomain event for d.
func UntrustDomain(d string) Event { return Event{Type: EventUntrustDomain, Domain: d} }

// ActiveDomainChanged returns an ActiveDomainChanged event for d.  An empty d
// means that no page is active.
func ActiveDomainChanged(d string) Event {
	return Event{Type: EventActiveDomainChanged, Domain: d}
}

// SetCategories returns a SetCategories event.
func SetCategories(ids []category.ID) Event {
	return Event{Type: EventSetCategories, Categories: append([]category.ID(nil), ids...)}
}
