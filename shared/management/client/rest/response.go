package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/peerctl/shared/management/status"
)

// maxBodySize bounds the bytes read from one answer
const maxBodySize = 10 << 20

// Response is a parsed answer of the service.
// JSON holds the raw body for JSON content types, Text the body for text/plain. Other content
// types carry no payload.
type Response struct {
	StatusCode int
	Header     http.Header
	JSON       json.RawMessage
	Text       string
	OK         bool
}

// HasPayload reports whether a JSON or text body was received
func (r *Response) HasPayload() bool {
	return len(r.JSON) > 0 || r.Text != ""
}

// ErrorMessage extracts the message of an error answer
func (r *Response) ErrorMessage() string {
	if len(r.JSON) > 0 {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(r.JSON, &body); err == nil && body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(r.Text)
}

// DecodeJSON decodes the JSON payload of resp
func DecodeJSON[T any](resp *Response) (T, error) {
	var ret T
	if resp == nil || len(resp.JSON) == 0 {
		return ret, status.Errorf(status.Internal, "response has no JSON payload")
	}
	if err := json.Unmarshal(resp.JSON, &ret); err != nil {
		return ret, status.NewInternalError(err, "decode response")
	}
	return ret, nil
}

func readResponse(httpResp *http.Response) (*Response, error) {
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		OK:         httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return resp, nil
	}

	mediaType, _, err := mime.ParseMediaType(httpResp.Header.Get("Content-Type"))
	if err != nil {
		return resp, nil
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if !json.Valid(body) {
			log.Debugf("discarding malformed JSON body of a %d answer", httpResp.StatusCode)
			return resp, nil
		}
		resp.JSON = body
	case mediaType == "text/plain":
		resp.Text = string(body)
	}
	return resp, nil
}
