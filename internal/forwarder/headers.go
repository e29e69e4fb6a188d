package forwarder

import (
	"context"
	"net/http"
)

type headersKey struct{}

// forwardedHeaders is the set of inbound request headers that travel with a
// forwarded write. Everything else (hop-by-hop headers, content-length) is
// owned by the forwarding client itself.
var forwardedHeaders = []string{
	"Authorization",
	"Content-Type",
	"Accept",
	"X-Request-Id",
	"X-Forward",
}

// WithHeaders returns a context carrying the forwardable subset of h, for a
// later mutation on this request to pass along if it has to forward to the
// leader.
func WithHeaders(ctx context.Context, h http.Header) context.Context {
	kept := make(http.Header, len(forwardedHeaders))
	for _, name := range forwardedHeaders {
		if vs := h.Values(name); len(vs) > 0 {
			kept[http.CanonicalHeaderKey(name)] = vs
		}
	}
	return context.WithValue(ctx, headersKey{}, kept)
}

// HeadersFromContext returns the headers stored by WithHeaders, or nil.
func HeadersFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(headersKey{}).(http.Header)
	return h
}
