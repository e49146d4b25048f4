package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/forms"
)

// SignatureHeader is the header outbound deliveries carry their HMAC-SHA256
// signature in (§4.9).
const SignatureHeader = "X-Form-Signature"

// EventPayload is the JSON body sent to a form's subscribed webhook
// endpoints (§4.9): {event, timestamp, form_id, form_title, response_id,
// data}. The signature is carried only in the X-Form-Signature header, as
// the HMAC over these exact bytes; embedding it in the body too would mean
// signing bytes other than the ones actually delivered.
type EventPayload struct {
	Event      string         `json:"event"`
	Timestamp  time.Time      `json:"timestamp"`
	FormID     string         `json:"form_id"`
	FormTitle  string         `json:"form_title"`
	ResponseID string         `json:"response_id"`
	Data       map[string]any `json:"data"`
}

// Dispatcher fans an event out to every one of a form's webhook
// subscriptions whose events[] matches, signing and enqueuing each
// delivery onto the retry worker's queue.
type Dispatcher struct {
	retry *RetryWorker
}

// NewDispatcher builds a Dispatcher backed by retry's queue.
func NewDispatcher(retry *RetryWorker) *Dispatcher {
	return &Dispatcher{retry: retry}
}

// Dispatch enqueues event for every active, matching webhook subscription
// on form. Enqueue failures are logged and swallowed — per §4.9/§4.11
// webhook errors never fail the originating request.
func (d *Dispatcher) Dispatch(ctx context.Context, form *forms.Form, event, responseID string, data map[string]any) {
	for _, wh := range form.Webhooks {
		if !wh.Active || !eventMatches(wh.Events, event) {
			continue
		}

		body, sig, err := buildSignedPayload(wh.Secret, event, form, responseID, data)
		if err != nil {
			log.Error().Err(err).Str("form_id", form.ID).Str("event", event).Msg("building webhook payload failed")
			continue
		}

		headers := map[string]string{SignatureHeader: sig}
		if err := d.retry.EnqueueWebhook(ctx, webhookSubscriptionID(form.ID, wh.URL), wh.URL, body, headers); err != nil {
			log.Error().Err(err).Str("form_id", form.ID).Str("url", wh.URL).Msg("enqueueing webhook delivery failed")
		}
	}
}

// eventMatches reports whether event is in subscribed, treating each entry
// as a glob pattern so a subscription can use e.g. "*" or "status_*" to
// cover multiple event names without listing each one.
func eventMatches(subscribed []string, event string) bool {
	for _, pattern := range subscribed {
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		if g.Match(event) {
			return true
		}
	}
	return false
}

func buildSignedPayload(secret, event string, form *forms.Form, responseID string, data map[string]any) (string, string, error) {
	payload := EventPayload{
		Event: event, Timestamp: time.Now().UTC(), FormID: form.ID,
		FormTitle: form.Title, ResponseID: responseID, Data: data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshaling payload: %w", err)
	}

	sig := sign(secret, body)

	return string(body), sig, nil
}

// sign computes the HMAC-SHA256 signature over the exact bytes of body,
// the same bytes a receiver must recompute the hash over to verify it.
func sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func webhookSubscriptionID(formID, url string) string {
	return formID + ":" + url
}
