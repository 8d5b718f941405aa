package channels

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"wabridge/pkg/relay"
)

type fakeConn struct {
	mu          sync.Mutex
	handler     func(evt interface{})
	registered  bool
	connectErr  error
	connects    int
	disconnects int
	persists    int
	qr          chan whatsmeow.QRChannelItem
	qrOnce      sync.Once
	pairCode    string
	pairErr     error
	pairCalls   int
	pairedPhone string
	texts       []string
}

func newFakeConn(registered bool) *fakeConn {
	return &fakeConn{
		registered: registered,
		qr:         make(chan whatsmeow.QRChannelItem, 8),
	}
}

func (f *fakeConn) AddEventHandler(handler func(evt interface{})) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeConn) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	f.qrOnce.Do(func() { close(f.qr) })
}

func (f *fakeConn) IsRegistered() bool {
	return f.registered
}

func (f *fakeConn) QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return f.qr, nil
}

func (f *fakeConn) PairPhone(ctx context.Context, phone, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairCalls++
	f.pairedPhone = phone
	return f.pairCode, f.pairErr
}

func (f *fakeConn) Persist(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persists++
	return nil
}

func (f *fakeConn) SendText(ctx context.Context, to types.JID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, to.String()+"|"+text)
	return nil
}

func (f *fakeConn) SendImage(ctx context.Context, to types.JID, img Image) error {
	return nil
}

func (f *fakeConn) emit(evt interface{}) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (f *fakeConn) snapshot() (connects, disconnects, persists, pairCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, f.persists, f.pairCalls
}

type fakeRelay struct {
	mu   sync.Mutex
	msgs []relay.Message
}

func (r *fakeRelay) Dispatch(msg relay.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *fakeRelay) messages() []relay.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relay.Message(nil), r.msgs...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestChannel wires a channel whose dials hand out conns in order. Once
// they run out, dials block until the loop is stopped.
func newTestChannel(t *testing.T, opts Options, conns ...*fakeConn) (*WhatsAppChannel, *fakeRelay, *syncBuffer) {
	t.Helper()
	if opts.ReconnectInterval == 0 {
		opts.ReconnectInterval = time.Millisecond
	}
	if opts.ReconnectBurst == 0 {
		opts.ReconnectBurst = 100
	}
	if opts.PairRetryDelay == 0 {
		opts.PairRetryDelay = 10 * time.Millisecond
	}

	rl := &fakeRelay{}
	out := &syncBuffer{}
	c := NewWhatsAppChannel(opts, nil, NewHolder(), rl)
	c.out = out

	var (
		mu   sync.Mutex
		next int
	)
	c.dial = func(ctx context.Context) (connection, error) {
		mu.Lock()
		if next < len(conns) {
			conn := conns[next]
			next++
			mu.Unlock()
			return conn, nil
		}
		mu.Unlock()
		<-ctx.Done()
		return nil, errors.New("no more connections")
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Stop(ctx)
	})
	return c, rl, out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func connected(f *fakeConn) func() bool {
	return func() bool {
		n, _, _, _ := f.snapshot()
		return n > 0
	}
}
