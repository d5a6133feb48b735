/*-------------------------------------------------------------------------
 *
 * request_id.go
 *    Request correlation for the workflow API
 *
 * Every request carries an id, taken from the caller's X-Request-ID
 * header or minted here, so a workflow registration or execution call
 * can be matched to its log lines and error payloads.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/request_id.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* HeaderRequestID carries the correlation id on requests and responses */
const HeaderRequestID = "X-Request-ID"

type requestIDCtxKey struct{}

/* RequestIDMiddleware stamps the request with a correlation id. The id
 * is stored in the request context, seeded into the log context, and
 * echoed on the response so callers can quote it when reporting
 * failures. */
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := correlationID(r)
		ctx := context.WithValue(r.Context(), requestIDCtxKey{}, requestID)
		ctx = metrics.WithLogContext(ctx, requestID, "", "", "")
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

/* correlationID reuses the caller's id when one is supplied, otherwise
 * mints a fresh one */
func correlationID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

/* GetRequestID returns the correlation id stamped by the middleware,
 * or "" for contexts that never passed through it */
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}
