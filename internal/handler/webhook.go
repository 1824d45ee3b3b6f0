package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const signatureHeader = "Webhook-Signature"

// maxWebhookBody bounds how much of a webhook payload is read.
const maxWebhookBody = 256 << 10

// paymentWebhook receives asynchronous events from the payment provider.
// A 2xx acknowledges the event; any other status makes the provider retry,
// so only genuine store failures return 5xx.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Kind: "validation", Message: "unreadable body"})
		return
	}

	if !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Kind: "unauthorized", Message: "invalid webhook signature"})
		return
	}

	ev, err := decodeEvent(body)
	if err != nil {
		// Malformed payloads will never parse on retry either; log and ack.
		zctx.From(r.Context()).Warn("Malformed webhook payload", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.payments.ApplyEvent(r.Context(), ev); err != nil {
		// Not acknowledged: the provider retries and idempotency absorbs the
		// duplicate delivery.
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the hex HMAC-SHA256 of the body against the header
// value in constant time.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	if len(h.webhookSecret) == 0 || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	return subtle.ConstantTimeCompare(mac.Sum(nil), provided) == 1
}

// decodeEvent parses the provider's event envelope:
//
//	{"id": "...", "type": "...", "data": {"object": {"id": "<payment ref>"}}}
func decodeEvent(body []byte) (payment.Event, error) {
	ev := payment.Event{Payload: body}

	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			ev.ID, err = d.Str()
		case "type":
			ev.Type, err = d.Str()
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "object" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "id" {
						return d.Skip()
					}
					var err error
					ev.PaymentRef, err = d.Str()
					return err
				})
			})
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return payment.Event{}, err
	}

	if ev.ID == "" || ev.Type == "" {
		return payment.Event{}, errors.New("event missing id or type")
	}
	return ev, nil
}
