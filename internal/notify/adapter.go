package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/engine"
	"github.com/roach88/blocksync/internal/hostname"
	"golang.org/x/time/rate"
)

// Subscriber is the receiving half of a [Bus].
type Subscriber interface {
	Subscribe(ctx context.Context) (ch <-chan Notification, err error)
}

// Enqueuer accepts engine events.  It is implemented by *engine.Engine.
type Enqueuer interface {
	Enqueue(ev engine.Event) bool
}

// AdapterConfig is the configuration for an [Adapter].
type AdapterConfig struct {
	// Logger is used for dropped notifications.  It must not be nil.
	Logger *slog.Logger

	// Subscriber delivers inbound notifications.  It must not be nil.
	Subscriber Subscriber

	// Scratch holds the notification payloads.  It must not be nil.
	Scratch Scratch

	// Target receives the translated events.  It must not be nil.
	Target Enqueuer

	// Peer is the accepted sender identifier.  Empty means [DefaultPeer].
	Peer string

	// Limiter bounds the rate of accepted notifications.  If nil, the rate
	// is unbounded.
	Limiter *rate.Limiter
}

// Adapter translates payload-less notifications plus scratch payloads into
// typed engine events.
type Adapter struct {
	logger  *slog.Logger
	sub     Subscriber
	scratch Scratch
	target  Enqueuer
	peer    string
	limiter *rate.Limiter
}

// NewAdapter returns a new properly initialized *Adapter.  c must not be nil.
func NewAdapter(c *AdapterConfig) (a *Adapter) {
	peer := c.Peer
	if peer == "" {
		peer = DefaultPeer
	}

	return &Adapter{
		logger:  c.Logger,
		sub:     c.Subscriber,
		scratch: c.Scratch,
		target:  c.Target,
		peer:    peer,
		limiter: c.Limiter,
	}
}

// Run subscribes and forwards events until ctx is canceled or the
// subscription ends.  A notification that cannot be translated is logged and
// dropped.
func (a *Adapter) Run(ctx context.Context) (err error) {
	ch, err := a.sub.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	a.logger.InfoContext(ctx, "notification adapter started", "peer", a.peer)

	for n := range ch {
		if a.limiter != nil {
			if err = a.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		ev, ok, terr := a.Translate(ctx, n)
		if terr != nil {
			a.logger.WarnContext(ctx, "dropping notification", "name", n.Name, slogutil.KeyError, terr)

			continue
		} else if !ok {
			continue
		}

		if !a.target.Enqueue(ev) {
			a.logger.InfoContext(ctx, "engine stopped, adapter exiting")

			return nil
		}
	}

	return ctx.Err()
}

// Translate converts n into an engine event.  ok is false for notifications
// from another peer and for notifications not addressed to the engine.
func (a *Adapter) Translate(ctx context.Context, n Notification) (ev engine.Event, ok bool, err error) {
	if n.Peer != a.peer {
		a.logger.DebugContext(ctx, "ignoring foreign notification", "name", n.Name, "peer", n.Peer)

		return engine.Event{}, false, nil
	}

	switch n.Name {
	case NamePause:
		return engine.Pause(), true, nil
	case NameResume:
		return engine.Resume(), true, nil
	case NameSwitchToDefault:
		return engine.SwitchToDefault(), true, nil
	case NameSwitchToCustom:
		return engine.SwitchToCustom(), true, nil
	case NameTrustDomain, NameUntrustDomain:
		d, derr := a.domain(ctx, KeyDomain, false)
		if derr != nil {
			return engine.Event{}, false, derr
		}

		if n.Name == NameTrustDomain {
			return engine.TrustDomain(d), true, nil
		}

		return engine.UntrustDomain(d), true, nil
	case NameActiveDomainChanged:
		d, derr := a.domain(ctx, KeyNewDomain, true)
		if derr != nil {
			return engine.Event{}, false, derr
		}

		return engine.ActiveDomainChanged(d), true, nil
	case NameSetCategories:
		ids, cerr := a.categories(ctx)
		if cerr != nil {
			return engine.Event{}, false, cerr
		}

		return engine.SetCategories(ids), true, nil
	case NameReload:
		// Addressed to the extension runtime.
		return engine.Event{}, false, nil
	default:
		return engine.Event{}, false, fmt.Errorf("unknown notification %q", n.Name)
	}
}

// domain reads and normalizes the domain stored under key.
func (a *Adapter) domain(ctx context.Context, key string, allowEmpty bool) (d string, err error) {
	v, ok, err := a.scratch.Shared(ctx, key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}

	if !ok || v == "" {
		if allowEmpty {
			return "", nil
		}

		return "", fmt.Errorf("no %s in shared storage", key)
	}

	return hostname.Normalize(v)
}

// categories reads the category list stored under [KeyCategories].
func (a *Adapter) categories(ctx context.Context) (ids []category.ID, err error) {
	v, ok, err := a.scratch.Shared(ctx, KeyCategories)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", KeyCategories, err)
	} else if !ok {
		return nil, fmt.Errorf("no %s in shared storage", KeyCategories)
	}

	var names []string
	if err = json.Unmarshal([]byte(v), &names); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", KeyCategories, err)
	}

	return category.ParseAll(names)
}
