package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kaizen2025/Formation/internal/logging"
)

// DraftCookieName is the cookie carrying the identifier of the caller's booking draft.
const DraftCookieName = "booking_draft"

// ContextWithLogger returns a derived context carrying the request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request scoped logger if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

type cookiePolicy struct {
	secure bool
	maxAge time.Duration
}

func (p cookiePolicy) setDraft(w http.ResponseWriter, draftID string) {
	cookie := &http.Cookie{
		Name:     DraftCookieName,
		Value:    draftID,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if p.maxAge > 0 {
		cookie.MaxAge = int(p.maxAge.Seconds())
	}
	http.SetCookie(w, cookie)
}

func (p cookiePolicy) clearDraft(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     DraftCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func draftIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("X-Booking-Draft")); header != "" {
		return header
	}
	if cookie, err := r.Cookie(DraftCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
