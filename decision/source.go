package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
)

// Source produces a raw decision candidate for an event. Remote sources
// may time out or return malformed output; the Resolver absorbs both.
type Source interface {
	Decide(ctx context.Context, ev *event.Event, prev *event.DeviceState) ([]byte, error)
}

// LocalSource adapts a Policy to the Source contract. It cannot fail.
type LocalSource struct {
	policy Policy
}

// NewLocalSource wraps policy as a Source.
func NewLocalSource(policy Policy) *LocalSource {
	return &LocalSource{policy: policy}
}

// Decide runs the policy and serializes its decision.
func (s *LocalSource) Decide(_ context.Context, ev *event.Event, prev *event.DeviceState) ([]byte, error) {
	d := s.policy.Decide(ev, prev)
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.WrapInvalid(err, "LocalSource", "Decide", "encode decision")
	}
	return data, nil
}

// HTTPSource calls a remote decision endpoint. The request body carries
// the event and the previous device state; the response body is a
// decision candidate.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

// HTTPSourceOption configures an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// NewHTTPSource creates a source calling endpoint.
func NewHTTPSource(endpoint string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// decisionInput is the request envelope sent to a remote decision
// endpoint. previousState is null for a device not yet seen.
type decisionInput struct {
	Event         *event.Event       `json:"event"`
	PreviousState *event.DeviceState `json:"previousState"`
}

// Decide POSTs the event and previous state, returning the raw
// response body.
func (s *HTTPSource) Decide(ctx context.Context, ev *event.Event, prev *event.DeviceState) ([]byte, error) {
	body, err := json.Marshal(decisionInput{Event: ev, PreviousState: prev})
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPSource", "Decide", "encode input")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPSource", "Decide", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrDecisionUnavailable, "HTTPSource", "Decide",
			fmt.Sprintf("call %s: %v", s.endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, errors.WrapTransient(errors.ErrDecisionUnavailable, "HTTPSource", "Decide",
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, s.endpoint))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPSource", "Decide", "read response")
	}
	return data, nil
}

var (
	_ Source = (*LocalSource)(nil)
	_ Source = (*HTTPSource)(nil)
)
