package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	sessionCookie = "storefront_session"
	userIDHeader  = "X-User-ID"

	sessionTTL = 30 * 24 * time.Hour
)

type ownerKey struct{}

// Session resolves the cart owner for the request: an authenticated user id
// from the X-User-ID header wins, otherwise the session cookie is used and
// minted on first contact.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var owner cart.Owner
		if userID := r.Header.Get(userIDHeader); userID != "" {
			owner = cart.Owner{UserID: userID}
		} else {
			sid := ""
			if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
				sid = c.Value
			}
			if sid == "" {
				sid = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookie,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(sessionTTL.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			owner = cart.Owner{SessionID: sid}
		}

		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFrom returns the cart owner resolved by the Session middleware.
func ownerFrom(ctx context.Context) cart.Owner {
	owner, _ := ctx.Value(ownerKey{}).(cart.Owner)
	return owner
}
