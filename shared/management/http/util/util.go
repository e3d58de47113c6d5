package util

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/peerctl/shared/management/status"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WriteJSONObject writes an object to the HTTP response in JSON format.
func WriteJSONObject(ctx context.Context, w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		log.WithContext(ctx).Errorf("failed encoding response: %v", err)
	}
}

// WriteText writes a plain text body, used for configuration exports
func WriteText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// WriteErrorResponse prepares and writes an error response in JSON format.
func WriteErrorResponse(errMsg string, httpStatus int, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	w.WriteHeader(httpStatus)
	err := json.NewEncoder(w).Encode(&ErrorResponse{
		Message: errMsg,
		Code:    httpStatus,
	})
	if err != nil {
		// If encoding fails, use plain text error (should never happen)
		http.Error(w, "failed handling request", http.StatusInternalServerError)
	}
}

// WriteError converts an error to a JSON error response.
// Known status errors get their matching HTTP status, anything else becomes a 500
// with a generic message.
func WriteError(ctx context.Context, err error, w http.ResponseWriter) {
	log.WithContext(ctx).Debugf("got a handler error: %s", err.Error())

	errStatus, ok := status.FromError(err)
	httpStatus := http.StatusInternalServerError
	msg := "internal server error"

	if ok && errStatus != nil {
		switch errStatus.Type() {
		case status.NotFound:
			httpStatus = http.StatusNotFound
			msg = errStatus.Error()
		case status.Validation:
			httpStatus = http.StatusBadRequest
			msg = strings.TrimSpace(errStatus.Error())
		case status.Unauthorized, status.Authentication:
			httpStatus = http.StatusUnauthorized
			msg = "unauthorized"
		case status.RateLimited:
			httpStatus = http.StatusTooManyRequests
			msg = "too many requests"
			if errStatus.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(errStatus.RetryAfter.Seconds())))
			}
		case status.Server:
			if errStatus.StatusCode >= 500 {
				httpStatus = errStatus.StatusCode
			}
		}
	} else {
		log.WithContext(ctx).Errorf("got unhandled error: %s", err.Error())
	}

	WriteErrorResponse(msg, httpStatus, w)
}
