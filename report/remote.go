package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lagren/healthguard/api"
	"github.com/lagren/healthguard/config"
	"github.com/lagren/healthguard/signature"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrDelivery marks a batch the remote ingestion service did not accept.
var ErrDelivery = errors.New("delivery failed")

// RemoteSink posts batches to an ingestion service. Delivery is attempted once
// per batch.
type RemoteSink struct {
	url        string
	appID      string
	signingKey string
	client     *http.Client
}

func NewRemoteSink(baseURL, appID string, timeout time.Duration, signingKey string) (*RemoteSink, error) {
	if baseURL == "" {
		return nil, &config.ConfigurationError{Key: "monitor.sync_url", Reason: "is not set"}
	}
	if appID == "" {
		return nil, &config.ConfigurationError{Key: "monitor.sync_app_id", Reason: "is not set"}
	}

	return &RemoteSink{
		url:        strings.TrimRight(baseURL, "/") + api.JobsPath,
		appID:      appID,
		signingKey: signingKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (s *RemoteSink) Name() string {
	return "remote"
}

func (s *RemoteSink) URL() string {
	return s.url
}

func (s *RemoteSink) Send(ctx context.Context, b *Batch) error {
	body, err := json.Marshal(b.Payload(s.appID))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if s.signingKey != "" {
		signature.Sign(req, body, s.signingKey, time.Now())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("%w: %s responded %d: %s", ErrDelivery, s.url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}
