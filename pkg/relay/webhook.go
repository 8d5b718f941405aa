package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"

	"wabridge/pkg/logger"
)

// TokenHeader carries the shared secret on relay calls and gateway commands.
const TokenHeader = "X-Bot-Token"

// Message is the body posted to the webhook for every relayed inbound text.
type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type Options struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxInFlight int
}

// Webhook forwards inbound messages with at-most-once delivery. A failed post
// is logged and dropped.
type Webhook struct {
	client *resty.Client
	url    string
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWebhook(opts Options) *Webhook {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 32
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader(TokenHeader, opts.Secret)

	ctx, cancel := context.WithCancel(context.Background())
	return &Webhook{
		client: client,
		url:    opts.URL,
		sem:    semaphore.NewWeighted(int64(maxInFlight)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Post sends msg synchronously. Any transport error or non-2xx status is
// returned.
func (w *Webhook) Post(ctx context.Context, msg Message) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook returned %s", resp.Status())
	}
	return nil
}

// Dispatch posts msg on a background goroutine and never blocks the caller.
// Concurrent posts are bounded; excess dispatches wait for a free slot.
func (w *Webhook) Dispatch(msg Message) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.sem.Acquire(w.ctx, 1); err != nil {
			logger.WarnCF("relay", "Relay dropped during shutdown", map[string]interface{}{
				logger.FieldSender: msg.Sender,
			})
			return
		}
		defer w.sem.Release(1)

		start := time.Now()
		if err := w.Post(w.ctx, msg); err != nil {
			logger.ErrorCF("relay", "Failed to forward message to webhook", map[string]interface{}{
				logger.FieldSender: msg.Sender,
				logger.FieldError:  err.Error(),
			})
			return
		}
		logger.DebugCF("relay", "Message forwarded to webhook", map[string]interface{}{
			logger.FieldSender:     msg.Sender,
			logger.FieldDurationMS: time.Since(start).Milliseconds(),
		})
	}()
}

// Close waits for in-flight posts until ctx expires, then aborts the rest.
func (w *Webhook) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}
