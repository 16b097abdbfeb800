// Package notify carries the named, payload-less notifications exchanged by the
// host application and the extension process, and translates them into typed
// engine events at the boundary.
package notify

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// Name is the name of a cross-process notification.
type Name string

// Notification names.
const (
	NamePause               Name = "pause"
	NameResume              Name = "resume"
	NameSwitchToDefault     Name = "switchToDefault"
	NameSwitchToCustom      Name = "switchToCustom"
	NameTrustDomain         Name = "trustDomain"
	NameUntrustDomain       Name = "untrustDomain"
	NameActiveDomainChanged Name = "activeDomainChanged"
	NameSetCategories       Name = "setCategories"
	NameReload              Name = "reload"
)

// knownNames is the closed set of notification names.
var knownNames = []Name{
	NamePause,
	NameResume,
	NameSwitchToDefault,
	NameSwitchToCustom,
	NameTrustDomain,
	NameUntrustDomain,
	NameActiveDomainChanged,
	NameSetCategories,
	NameReload,
}

// Names returns every known notification name.
func Names() (names []Name) {
	return append([]Name(nil), knownNames...)
}

// ParseName returns the notification name matching s.
func ParseName(s string) (n Name, err error) {
	for _, k := range knownNames {
		if string(k) == s {
			return k, nil
		}
	}

	return "", fmt.Errorf("unknown notification %q", s)
}

// DefaultPeer is the peer identifier the host and the extension use to
// recognize each other's notifications.
const DefaultPeer = "blocksync.extension"

// Shared scratch keys.  Payloads never travel in the notification itself.
const (
	KeyDomain     = "domain"
	KeyNewDomain  = "newDomain"
	KeyCategories = "categories"
	KeyIsDefault  = "isDefault"
)

// ErrClosed is returned by operations on a closed bus.
const ErrClosed errors.Error = "notification bus closed"

// Notification is a single named signal.  On the wire it is one JSON object
// per line.
type Notification struct {
	Name Name   `json:"name"`
	Peer string `json:"peer"`
}

// Poster sends notifications.
type Poster interface {
	// Post delivers n to every current subscriber.
	Post(ctx context.Context, n Notification) (err error)
}

// Bus is a notification transport.
type Bus interface {
	Poster

	// Subscribe returns a channel of notifications.  The channel is closed
	// when ctx is canceled or the bus is closed.
	Subscribe(ctx context.Context) (ch <-chan Notification, err error)

	// Close releases the transport.  Subsequent operations return
	// [ErrClosed].
	Close() (err error)
}

// Scratch is the shared key/value space carrying notification payloads.
type Scratch interface {
	PutShared(ctx context.Context, key, value string) (err error)
	Shared(ctx context.Context, key string) (value string, ok bool, err error)
}
