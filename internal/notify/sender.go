package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/hostname"
)

// Sender posts notifications on behalf of the host application.  Payloads are
// written to the shared scratch space before the notification is posted.
type Sender struct {
	poster  Poster
	scratch Scratch
	peer    string
}

// NewSender returns a new *Sender.  An empty peer selects [DefaultPeer].
func NewSender(p Poster, s Scratch, peer string) (snd *Sender) {
	if peer == "" {
		peer = DefaultPeer
	}

	return &Sender{
		poster:  p,
		scratch: s,
		peer:    peer,
	}
}

// Send writes the payload for name from args and posts the notification.
// The domain notifications take one hostname argument; setCategories takes
// category names.
func (s *Sender) Send(ctx context.Context, name Name, args ...string) (err error) {
	switch name {
	case NameTrustDomain, NameUntrustDomain:
		if len(args) != 1 {
			return fmt.Errorf("%s: want exactly one domain, got %d", name, len(args))
		}

		err = s.putDomain(ctx, KeyDomain, args[0])
	case NameActiveDomainChanged:
		d := ""
		if len(args) > 0 {
			d = args[0]
		}

		err = s.putDomain(ctx, KeyNewDomain, d)
	case NameSetCategories:
		err = s.putCategories(ctx, args)
	default:
		if len(args) > 0 {
			return fmt.Errorf("%s: takes no arguments", name)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return s.Post(ctx, name)
}

// Post posts a payload-less notification.
func (s *Sender) Post(ctx context.Context, name Name) (err error) {
	err = s.poster.Post(ctx, Notification{Name: name, Peer: s.peer})
	if err != nil {
		return fmt.Errorf("posting %s: %w", name, err)
	}

	return nil
}

// putDomain normalizes d and stores it under key.  An empty d is stored as
// is.
func (s *Sender) putDomain(ctx context.Context, key, d string) (err error) {
	if d != "" {
		d, err = hostname.Normalize(d)
		if err != nil {
			return err
		}
	}

	return s.scratch.PutShared(ctx, key, d)
}

// putCategories validates names and stores them as a JSON array.
func (s *Sender) putCategories(ctx context.Context, names []string) (err error) {
	ids, err := category.ParseAll(names)
	if err != nil {
		return err
	}

	b, err := json.Marshal(category.Strings(category.Dedup(ids)))
	if err != nil {
		return fmt.Errorf("encoding categories: %w", err)
	}

	return s.scratch.PutShared(ctx, KeyCategories, string(b))
}
