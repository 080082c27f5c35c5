package testutil

import (
	"context"
	"sync"

	"github.com/dalemusser/collabhub/internal/app/system/mailer"
)

// SentEmail is one call recorded by FakeDispatcher.
type SentEmail struct {
	Key     mailer.EndpointKey
	Payload mailer.Payload
}

// FakeDispatcher records dispatches. Set Err to make every call fail.
type FakeDispatcher struct {
	mu   sync.Mutex
	sent []SentEmail
	Err  error
}

func (d *FakeDispatcher) Dispatch(ctx context.Context, key mailer.EndpointKey, p mailer.Payload) error {
	if err := p.Validate(key); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.sent = append(d.sent, SentEmail{Key: key, Payload: p})
	return nil
}

// Sent returns a copy of the recorded calls.
func (d *FakeDispatcher) Sent() []SentEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SentEmail(nil), d.sent...)
}

// SentTo counts calls to one endpoint.
func (d *FakeDispatcher) SentTo(key mailer.EndpointKey) int {
	n := 0
	for _, s := range d.Sent() {
		if s.Key == key {
			n++
		}
	}
	return n
}
