// Package exchange implements the token exchange: client secret injection,
// forwarding to the token endpoint and relaying its response.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"golang.org/x/net/http/httpguts"

	"oauth-token-proxy/internal/config"
	"oauth-token-proxy/internal/metrics"
	"oauth-token-proxy/internal/model"
	"oauth-token-proxy/internal/settings"
)

// MediaTypeJSON is the only Accept value the proxy serves.
const MediaTypeJSON = "application/json"

const defaultMaxResponseBytes = 1 << 20

// Upstream posts a JSON token request to the token endpoint.
type Upstream interface {
	PostJSON(ctx context.Context, tokenURL, accept string, body []byte) (*model.UpstreamResponse, error)
}

// Service performs token exchanges.
type Service struct {
	settings         settings.Loader
	upstream         Upstream
	maxResponseBytes int64
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// NewService creates a Service. The metrics parameter may be nil.
func NewService(loader settings.Loader, up Upstream, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	limit := cfg.Upstream.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseBytes
	}
	return &Service{
		settings:         loader,
		upstream:         up,
		maxResponseBytes: limit,
		metrics:          m,
		logger:           logger.With("component", "exchange_service"),
	}
}

// CheckAccept rejects any Accept value other than exactly application/json.
// No wildcard or parameter matching is done.
func CheckAccept(accept string) error {
	if accept != MediaTypeJSON {
		return badRequest(MsgUnsupportedAccept, nil)
	}
	return nil
}

// Exchange injects the configured client secret into req.Body, posts it to the
// configured token URL and returns the token endpoint's response as a Reply.
// Upstream error statuses are returned as Replies, not errors.
// Any returned error is an *Error. req.Body is not modified.
func (s *Service) Exchange(ctx context.Context, req *model.TokenRequest) (*model.Reply, error) {
	if err := CheckAccept(req.Accept); err != nil {
		s.metrics.ObserveExchange(metrics.OutcomeRejected)
		return nil, err
	}

	st, err := s.settings.Load()
	if err != nil {
		return nil, s.fail(metrics.OutcomeSettingsError, internalError(MsgLoadSettings, err))
	}
	secret, err := st.String(settings.KeyClientSecret)
	if err != nil {
		return nil, s.fail(metrics.OutcomeSettingsError, internalError(MsgClientSecret, err))
	}
	tokenURL, err := st.String(settings.KeyTokenURL)
	if err != nil {
		return nil, s.fail(metrics.OutcomeSettingsError, internalError(MsgTokenURL, err))
	}

	payload := make(map[string]string, len(req.Body)+1)
	maps.Copy(payload, req.Body)
	payload[settings.KeyClientSecret] = secret

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, s.fail(metrics.OutcomeRelayError, internalError(MsgEncodeRequest, err))
	}

	s.logger.Debug("exchanging authorization code",
		"grant_type", req.Body["grant_type"],
		"fields", len(payload),
	)

	resp, err := s.upstream.PostJSON(ctx, tokenURL, req.Accept, data)
	if err != nil {
		return nil, s.fail(metrics.OutcomeUpstreamError, internalError(MsgUpstream, err))
	}
	defer func() { _ = resp.Body.Close() }()

	reply, rerr := s.relay(resp)
	if rerr != nil {
		return nil, s.fail(metrics.OutcomeRelayError, rerr)
	}

	s.metrics.ObserveExchange(metrics.OutcomeRelayed)
	s.logger.Debug("relaying token response", "status", reply.StatusCode, "bytes", len(reply.Body))
	return reply, nil
}

// relay copies status, headers and the complete body of resp into a Reply.
func (s *Service) relay(resp *model.UpstreamResponse) (*model.Reply, *Error) {
	header := make(http.Header, len(resp.Header))
	for _, key := range slices.Sorted(maps.Keys(resp.Header)) {
		if !httpguts.ValidHeaderFieldName(key) {
			return nil, internalError(MsgResponseHeader, fmt.Errorf("invalid header name %q", key))
		}
		for _, v := range resp.Header[key] {
			if !httpguts.ValidHeaderFieldValue(v) || !visibleASCII(v) {
				return nil, internalError(MsgResponseHeader, fmt.Errorf("value of header %q is not valid text", key))
			}
			header[key] = append(header[key], v)
		}
	}

	body, err := readBody(resp.Body, s.maxResponseBytes)
	if err != nil {
		return nil, internalError(MsgResponseBody, err)
	}

	reply := &model.Reply{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}
	if err := reply.Validate(); err != nil {
		return nil, internalError(MsgConstructResponse, err)
	}
	return reply, nil
}

// visibleASCII reports whether v holds only tabs and printable ASCII.
// obs-text bytes (0x80 and above) are not representable as header text.
func visibleASCII(v string) bool {
	for i := 0; i < len(v); i++ {
		b := v[i]
		if b != '\t' && (b < 0x20 || b > 0x7e) {
			return false
		}
	}
	return true
}

func (s *Service) fail(outcome string, err *Error) *Error {
	s.metrics.ObserveExchange(outcome)
	return err
}

// readBody reads r to completion, failing if it holds more than limit bytes.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("token response body exceeds %d bytes", limit)
	}
	return data, nil
}
