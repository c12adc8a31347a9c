// Package reload keeps the active Decider current as its feature document changes.
//
// A Holder publishes the active Decider through an atomic pointer. A Reloader
// builds a replacement from a Source and swaps it in only when the document
// loaded; a document that fails to initialize never replaces a working one.
package reload

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rafaeljc/decider/internal/decider"
)

// ErrNotLoaded is reported by Holder.Check before the first successful load.
var ErrNotLoaded = errors.New("no feature document loaded")

// Holder owns the active Decider. The zero value is ready to use.
type Holder struct {
	current atomic.Pointer[decider.Decider]
}

// Current returns the active Decider, or nil before the first load.
func (h *Holder) Current() *decider.Decider {
	return h.current.Load()
}

// Swap installs d and returns the Decider it replaced.
func (h *Holder) Swap(d *decider.Decider) *decider.Decider {
	return h.current.Swap(d)
}

// Features lists the active Decider's features, or nil before the first load.
func (h *Holder) Features() []string {
	if d := h.Current(); d != nil {
		return d.Features()
	}
	return nil
}

// Name implements observability.Checker.
func (h *Holder) Name() string {
	return "features"
}

// Check implements observability.Checker. The service is not ready until a
// feature document has been loaded.
func (h *Holder) Check(context.Context) error {
	if h.Current() == nil {
		return ErrNotLoaded
	}
	return nil
}
