package httpapi

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"cav-go/internal/cav"
)

// Identity headers set by the fronting application.
const (
	HeaderUserID     = "X-User-Id"
	HeaderUserName   = "X-User-Name"
	HeaderUserRole   = "X-User-Role"
	HeaderSessionID  = "X-Session-Id"
	HeaderPassphrase = "X-Cav-Passphrase"
)

// withActor attributes events recorded during the request to the identity
// headers. Requests without a user ID are recorded as anonymous.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor := cav.Actor{
			UserID:   userID,
			UserName: r.Header.Get(HeaderUserName),
			UserRole: r.Header.Get(HeaderUserRole),
		}
		ctx := cav.WithActor(r.Context(), actor, r.Header.Get(HeaderSessionID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withEventContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := cav.WithEventContext(r.Context(), eventContext(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// eventContext describes the client environment from request headers.
func eventContext(r *http.Request) cav.EventContext {
	evctx := cav.EventContext{
		URL:       r.URL.Path,
		UserAgent: r.UserAgent(),
	}
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		evctx.Locale = strings.TrimSpace(strings.SplitN(strings.SplitN(lang, ",", 2)[0], ";", 2)[0])
	}
	if evctx.UserAgent != "" {
		ua := useragent.New(evctx.UserAgent)
		browser, version := ua.Browser()
		parts := []string{}
		if osName := ua.OS(); osName != "" {
			parts = append(parts, osName)
		}
		if browser != "" {
			parts = append(parts, strings.TrimSpace(browser+" "+version))
		}
		if ua.Mobile() {
			parts = append(parts, "mobile")
		}
		evctx.Platform = strings.Join(parts, "; ")
	}
	return evctx
}
