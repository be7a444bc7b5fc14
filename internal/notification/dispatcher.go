package notification

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"

	"garden-push-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Registry is the subscription set the dispatcher fans out to, with the
// feedback path for permanently invalid endpoints. Satisfied by store.Store.
type Registry interface {
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	RemoveInvalid(ctx context.Context, endpoint string) error
}

// Result summarizes one fan-out call.
type Result struct {
	Sent    int `json:"sent"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Payload is the JSON document delivered to every recipient.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Dispatcher fans notifications out to every registered subscription.
type Dispatcher struct {
	registry Registry
	webpush  *webpush.Options
	sender   NotificationSender
}

// NewDispatcher creates a dispatcher using the real web push transport.
func NewDispatcher(registry Registry, webpushOptions *webpush.Options) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		webpush:  webpushOptions,
		sender:   &WebPushSender{},
	}
}

// SetSender replaces the delivery transport. Used by tests.
func (d *Dispatcher) SetSender(s NotificationSender) {
	d.sender = s
}

// Fanout sends the (title, body) notification to every registered
// subscription. Recipients are dispatched concurrently and independently: one
// failing delivery never blocks or fails another. The call returns only after
// every attempt has completed. Endpoints the push service reports as gone
// (404/410) are removed from the registry; any other failure is logged and
// the recipient kept. An empty registry is a successful zero-recipient
// fan-out.
func (d *Dispatcher) Fanout(ctx context.Context, title, body string) Result {
	subs, err := d.registry.ListSubscriptions(ctx)
	if err != nil {
		log.Printf("fanout aborted: failed to list subscriptions: %v", err)
		return Result{}
	}
	if len(subs) == 0 {
		return Result{}
	}

	payload, err := json.Marshal(Payload{Title: title, Body: body})
	if err != nil {
		log.Printf("fanout aborted: failed to marshal payload: %v", err)
		return Result{}
	}

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub model.PushSubscription) {
			defer wg.Done()
			outcome := d.deliver(ctx, sub, payload)
			mu.Lock()
			switch outcome {
			case outcomeSent:
				result.Sent++
			case outcomeRemoved:
				result.Removed++
			case outcomeFailed:
				result.Failed++
			}
			mu.Unlock()
		}(sub)
	}
	wg.Wait()

	log.Printf("fanout complete: title=%q sent=%d removed=%d failed=%d",
		title, result.Sent, result.Removed, result.Failed)
	return result
}

type deliveryOutcome int

const (
	outcomeSent deliveryOutcome = iota
	outcomeRemoved
	outcomeFailed
)

// deliver sends the payload to a single recipient and classifies the outcome.
func (d *Dispatcher) deliver(ctx context.Context, sub model.PushSubscription, payload []byte) deliveryOutcome {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(payload, wpSub, d.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return outcomeFailed
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		log.Printf("subscription %s is gone (status %d), removing", sub.Endpoint, resp.StatusCode)
		if err := d.registry.RemoveInvalid(ctx, sub.Endpoint); err != nil {
			log.Printf("failed to remove invalid subscription %s: %v", sub.Endpoint, err)
		}
		return outcomeRemoved
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeSent
	default:
		log.Printf("notification to %s rejected with status %d", sub.Endpoint, resp.StatusCode)
		return outcomeFailed
	}
}
