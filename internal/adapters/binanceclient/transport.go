package binanceclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"qyquant/internal/ports"
)

const maxErrorBody = 512

// envelopeTransport turns non-2xx responses and 2xx bodies carrying a
// {"code":..,"msg":..} error envelope into *ports.UpstreamAPIError before the
// SDK tries to decode them as market data.
type envelopeTransport struct {
	base http.RoundTripper
}

func (t *envelopeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, msg := parseEnvelope(body)
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(body)), maxErrorBody)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &ports.UpstreamAPIError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode,
			Code:       code,
			Message:    msg,
			Err:        statusSentinel(resp.StatusCode, code),
		}
	}

	if code, msg := parseEnvelope(body); msg != "" {
		return nil, &ports.UpstreamAPIError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode,
			Code:       code,
			Message:    msg,
			Err:        mapAPICode(code),
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// parseEnvelope returns the vendor code and message when body is a JSON
// object shaped like a Binance error. msg is empty otherwise.
func parseEnvelope(body []byte) (int64, string) {
	if !gjson.ValidBytes(body) {
		return 0, ""
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return 0, ""
	}
	code := root.Get("code")
	msg := root.Get("msg")
	if !code.Exists() || msg.String() == "" {
		return 0, ""
	}
	return code.Int(), msg.String()
}

func statusSentinel(status int, code int64) error {
	if status == http.StatusTooManyRequests || status == 418 {
		return ports.ErrRateLimited
	}
	if code != 0 {
		return mapAPICode(code)
	}
	if status >= 500 {
		return ports.ErrConnectionFailed
	}
	return ports.ErrInvalidRequest
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
