package channels

import (
	"context"
	"sync/atomic"

	"go.mau.fi/whatsmeow/types"
)

// Image is an outbound picture with an optional caption.
type Image struct {
	Data     []byte
	MimeType string
	Caption  string
}

// Sender is the send capability of a live connection.
type Sender interface {
	SendText(ctx context.Context, to types.JID, text string) error
	SendImage(ctx context.Context, to types.JID, img Image) error
}

type handle struct {
	sender Sender
}

// Holder is the single slot for the connection that currently accepts
// sends. The adapter writes it; gateway handlers only read.
type Holder struct {
	cur atomic.Pointer[handle]
}

func NewHolder() *Holder {
	return &Holder{}
}

// Set publishes s as the live connection, replacing any previous one.
func (h *Holder) Set(s Sender) {
	if s == nil {
		h.cur.Store(nil)
		return
	}
	h.cur.Store(&handle{sender: s})
}

// Clear empties the slot only if it still holds s, so a late close of an
// old connection cannot evict a newer one.
func (h *Holder) Clear(s Sender) bool {
	cur := h.cur.Load()
	if cur == nil || cur.sender != s {
		return false
	}
	return h.cur.CompareAndSwap(cur, nil)
}

// Current returns the live connection or nil.
func (h *Holder) Current() Sender {
	cur := h.cur.Load()
	if cur == nil {
		return nil
	}
	return cur.sender
}

func (h *Holder) Ready() bool {
	return h.cur.Load() != nil
}
