package middleware

import (
	"net/http"
	"strings"
)

type SecurityOptions struct {
	Production bool
	// ImageSources are extra origins the client may load images from, such
	// as the storage bucket behind avatar URLs.
	ImageSources []string
}

func SecureHeaders(opts SecurityOptions) func(http.Handler) http.Handler {
	imgSrc := strings.TrimSpace("'self' data: " + strings.Join(opts.ImageSources, " "))
	csp := "default-src 'self'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; object-src 'none'; " +
		"img-src " + imgSrc + "; style-src 'self' 'unsafe-inline'; script-src 'self'; connect-src 'self'"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			headers.Set("X-Content-Type-Options", "nosniff")
			headers.Set("X-Frame-Options", "DENY")
			headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			headers.Set("Content-Security-Policy", csp)
			headers.Set("Cross-Origin-Opener-Policy", "same-origin")
			if strings.HasPrefix(r.URL.Path, "/api/") {
				headers.Set("Cache-Control", "no-store")
			}
			if opts.Production {
				headers.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
