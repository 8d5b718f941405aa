package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"

	"wabridge/pkg/logger"
)

var errQRTimeout = errors.New("qr code expired before pairing")

// startPairing links an unregistered session. With a phone number it asks
// for a pairing code; without one it prints QR codes to scan.
func (c *WhatsAppChannel) startPairing(ctx context.Context, conn connection, closed *closureSignal) error {
	qrCh, err := conn.QRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if c.opts.Phone == "" {
		logger.InfoC("whatsapp", "Session not registered, scan the QR code with the secondary number")
		go c.watchQR(qrCh, closed, c.renderQR)
		return nil
	}

	firstCode := make(chan struct{})
	var signalled bool
	go c.watchQR(qrCh, closed, func(string) {
		if !signalled {
			signalled = true
			close(firstCode)
		}
	})

	runChannelTask("whatsapp", "Phone pairing", func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-firstCode:
		}
		return c.requestPairingCode(ctx, conn)
	}, func(err error) {
		c.close(conn, closed, closure{
			Cause:      err,
			RetryAfter: c.opts.PairRetryDelay,
		})
	})
	return nil
}

func (c *WhatsAppChannel) requestPairingCode(ctx context.Context, conn connection) error {
	code, err := conn.PairPhone(ctx, c.opts.Phone, c.opts.DeviceName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}

	logger.InfoCF("whatsapp", "Pairing code issued", map[string]interface{}{
		"phone": c.opts.Phone,
		"code":  code,
	})
	fmt.Fprintf(c.out, "\nPairing code for %s: %s\n", c.opts.Phone, code)
	fmt.Fprintln(c.out, "WhatsApp > Linked devices > Link with phone number instead")
	return nil
}

// watchQR drains the pairing event stream. Every code goes to onCode; the
// terminal events end this connection.
func (c *WhatsAppChannel) watchQR(qrCh <-chan whatsmeow.QRChannelItem, closed *closureSignal, onCode func(code string)) {
	for item := range qrCh {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			onCode(item.Code)
		case whatsmeow.QRChannelSuccess.Event:
			logger.InfoC("whatsapp", "Pairing completed")
		case whatsmeow.QRChannelTimeout.Event:
			closed.signal(closure{Cause: errQRTimeout})
		case whatsmeow.QRChannelEventError:
			closed.signal(closure{Cause: fmt.Errorf("pairing: %v", item.Error)})
		default:
			closed.signal(closure{Cause: fmt.Errorf("pairing: %s", item.Event)})
		}
	}
}

func (c *WhatsAppChannel) renderQR(code string) {
	fmt.Fprintln(c.out)
	qrterminal.GenerateHalfBlock(code, qrterminal.L, c.out)
	fmt.Fprintln(c.out)
}
