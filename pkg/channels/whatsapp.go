// wabridge - WhatsApp webhook bridge
// License: MIT
//
// Copyright (c) 2026 wabridge contributors

package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow/types/events"
	"golang.org/x/time/rate"

	"wabridge/pkg/lifecycle"
	"wabridge/pkg/logger"
	"wabridge/pkg/relay"
)

type ConnState string

const (
	StateInitializing ConnState = "initializing"
	StatePairing      ConnState = "pairing"
	StateConnecting   ConnState = "connecting"
	StateOpen         ConnState = "open"
	StateClosed       ConnState = "closed"
	StateLoggedOut    ConnState = "logged_out"
	StateStopped      ConnState = "stopped"
)

var (
	ErrNotConnected  = errors.New("whatsapp connection not established")
	ErrPairingFailed = errors.New("pairing failed")

	errDisconnected   = errors.New("disconnected")
	errConnectionDone = errors.New("connection torn down")
)

// Relayer receives inbound messages for delivery to the webhook.
type Relayer interface {
	Dispatch(msg relay.Message)
}

type Options struct {
	Phone             string
	DeviceName        string
	ProxyURL          string
	PairRetryDelay    time.Duration
	ReconnectInterval time.Duration
	ReconnectBurst    int
}

// WhatsAppChannel keeps one WhatsApp connection alive. Each dial registers
// its event reactions once; a closed connection is replaced by a new dial
// unless the account logged out.
type WhatsAppChannel struct {
	opts    Options
	holder  *Holder
	relay   Relayer
	dial    dialFunc
	runner  *lifecycle.LoopRunner
	out     io.Writer
	state   atomic.Value
	dials   atomic.Int64
	lastErr atomic.Value
}

func NewWhatsAppChannel(opts Options, st DeviceStore, holder *Holder, relayer Relayer) *WhatsAppChannel {
	if opts.PairRetryDelay <= 0 {
		opts.PairRetryDelay = 10 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 2 * time.Second
	}
	if opts.ReconnectBurst <= 0 {
		opts.ReconnectBurst = 3
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "Chrome (Linux)"
	}

	c := &WhatsAppChannel{
		opts:   opts,
		holder: holder,
		relay:  relayer,
		dial:   dialWhatsmeow(st, opts.ProxyURL),
		runner: lifecycle.NewLoopRunner(),
		out:    os.Stdout,
	}
	c.state.Store(StateInitializing)
	return c
}

// Start launches the supervision loop. Calling it while running is a no-op.
func (c *WhatsAppChannel) Start(ctx context.Context) error {
	if !c.runner.Start(ctx, c.run) {
		return nil
	}
	logger.InfoCF("whatsapp", "Starting WhatsApp channel", map[string]interface{}{
		"pairing_phone": c.opts.Phone != "",
		"proxy":         c.opts.ProxyURL != "",
	})
	return nil
}

func (c *WhatsAppChannel) Stop(ctx context.Context) error {
	if !c.runner.Stop(ctx) {
		return ctx.Err()
	}
	logger.InfoC("whatsapp", "WhatsApp channel stopped")
	return nil
}

// Done is closed when the supervision loop has ended, either on Stop or
// after a logout.
func (c *WhatsAppChannel) Done() <-chan struct{} {
	return c.runner.Done()
}

func (c *WhatsAppChannel) State() ConnState {
	return c.state.Load().(ConnState)
}

func (c *WhatsAppChannel) Dials() int64 {
	return c.dials.Load()
}

// LastError is the cause of the most recent closure, or "".
func (c *WhatsAppChannel) LastError() string {
	v, _ := c.lastErr.Load().(string)
	return v
}

func (c *WhatsAppChannel) setState(s ConnState) {
	prev := c.state.Swap(s)
	if prev != s {
		logger.DebugCF("whatsapp", "Connection state changed", map[string]interface{}{
			logger.FieldState: string(s),
			"previous":        prev,
		})
	}
}

func (c *WhatsAppChannel) run(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(c.opts.ReconnectInterval), c.opts.ReconnectBurst)

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			c.setState(StateStopped)
			return
		}

		cl := c.connectOnce(ctx)
		if ctx.Err() != nil {
			c.setState(StateStopped)
			return
		}
		if cl.Cause != nil {
			c.lastErr.Store(cl.Cause.Error())
		}

		if cl.LoggedOut {
			c.setState(StateLoggedOut)
			logger.WarnCF("whatsapp", "Logged out, not reconnecting; pair the device again", map[string]interface{}{
				logger.FieldCause:   errString(cl.Cause),
				logger.FieldAttempt: attempt,
			})
			return
		}

		c.setState(StateClosed)
		logger.WarnCF("whatsapp", "Connection closed, reconnecting", map[string]interface{}{
			logger.FieldCause:   errString(cl.Cause),
			logger.FieldAttempt: attempt,
		})

		if cl.RetryAfter > 0 && !sleepWithContext(ctx, cl.RetryAfter) {
			c.setState(StateStopped)
			return
		}
	}
}

// connectOnce dials, waits for that connection to end and tears it down.
func (c *WhatsAppChannel) connectOnce(parent context.Context) closure {
	c.setState(StateConnecting)
	c.dials.Add(1)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return closure{Cause: fmt.Errorf("dial: %w", err)}
	}

	closed := newClosureSignal()
	conn.AddEventHandler(func(evt interface{}) {
		c.handleEvent(ctx, conn, evt, closed)
	})
	defer func() {
		// Fire the signal first so a Connected that races teardown cannot
		// republish this handle after Clear.
		closed.signal(closure{Cause: errConnectionDone})
		c.holder.Clear(conn)
		conn.Disconnect()
	}()

	if conn.IsRegistered() {
		if err := conn.Connect(); err != nil {
			return closure{Cause: fmt.Errorf("connect: %w", err)}
		}
	} else {
		c.setState(StatePairing)
		if err := c.startPairing(ctx, conn, closed); err != nil {
			return closure{Cause: err}
		}
	}

	select {
	case <-ctx.Done():
		return closure{Cause: ctx.Err()}
	case cl := <-closed.C():
		return cl
	}
}

func (c *WhatsAppChannel) handleEvent(ctx context.Context, conn connection, raw interface{}, closed *closureSignal) {
	switch evt := raw.(type) {
	case *events.Connected:
		opened := closed.whileOpen(func() {
			c.holder.Set(conn)
			c.setState(StateOpen)
		})
		if !opened {
			logger.DebugC("whatsapp", "Ignoring connected event for a closed connection")
			return
		}
		logger.InfoC("whatsapp", "WhatsApp connection open")

	case *events.PairSuccess:
		if err := conn.Persist(ctx); err != nil {
			logger.ErrorCF("whatsapp", "Failed to persist session credentials", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
			return
		}
		logger.InfoCF("whatsapp", "Device paired, credentials saved", map[string]interface{}{
			"jid": evt.ID.String(),
		})

	case *events.Message:
		c.onMessage(evt)

	case *events.LoggedOut:
		c.close(conn, closed, closure{
			Cause:     fmt.Errorf("logged out: %v", evt.Reason),
			LoggedOut: true,
		})

	case *events.ConnectFailure:
		c.close(conn, closed, closure{
			Cause:     fmt.Errorf("connect failure: %v", evt.Reason),
			LoggedOut: evt.Reason.IsLoggedOut(),
		})

	case *events.Disconnected:
		c.close(conn, closed, closure{Cause: errDisconnected})

	case *events.StreamReplaced:
		c.close(conn, closed, closure{Cause: errors.New("stream replaced by another client")})

	case *events.TemporaryBan:
		c.close(conn, closed, closure{Cause: fmt.Errorf("temporary ban: %v", evt)})

	case *events.ClientOutdated:
		c.close(conn, closed, closure{Cause: errors.New("client outdated")})

	case *events.KeepAliveTimeout:
		logger.DebugCF("whatsapp", "Keepalive timeout", map[string]interface{}{
			"error_count": evt.ErrorCount,
		})
	}
}

// close withdraws conn from the holder before the loop notices, so gateway
// requests stop using it immediately. The signal fires before Clear; any
// Connected handled after that point leaves the holder alone.
func (c *WhatsAppChannel) close(conn connection, closed *closureSignal, cl closure) {
	closed.signal(cl)
	c.holder.Clear(conn)
}

func (c *WhatsAppChannel) onMessage(evt *events.Message) {
	msg, ok := inboundRecord(evt)
	if !ok {
		return
	}

	logger.InfoCF("whatsapp", "WhatsApp message received", map[string]interface{}{
		logger.FieldSender:  msg.Sender,
		logger.FieldPreview: truncateString(msg.Text, 50),
	})

	if c.relay != nil {
		c.relay.Dispatch(msg)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
