package feeds

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"
)

// LoggingTransport is an http.RoundTripper that logs outbound feed requests
// and their response bodies when the log level is debug.
type LoggingTransport struct {
	Base     http.RoundTripper
	LogLevel string
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if strings.ToLower(t.LogLevel) != "debug" {
		return base.RoundTrip(req)
	}

	log.Printf("DEBUG OUTBOUND REQUEST: [%s] %s", req.Method, req.URL.String())

	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	log.Printf("DEBUG OUTBOUND RESPONSE: %d %s", resp.StatusCode, req.URL.String())

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body = io.NopCloser(bytes.NewBuffer(respBody))

	if len(respBody) > 0 {
		log.Printf("DEBUG OUTBOUND RESPONSE BODY: %s", string(respBody))
	}

	return resp, nil
}
