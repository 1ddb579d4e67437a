package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"near-rpc-provider/internal/logger"
	"near-rpc-provider/internal/metrics"
	"near-rpc-provider/internal/types"
)

// Options tunes the tracker.
type Options struct {
	ProbeTimeout time.Duration
	// Concurrency caps simultaneous probes; 0 means unbounded.
	Concurrency int
	HTTPClient  *http.Client
	Verbose     bool
}

type snapshot struct {
	ranked    []types.RankedEndpoint
	updatedAt time.Time
}

// Tracker owns the candidate endpoints and the latency-ranked subset that
// answered the last probe as fully synced.
type Tracker struct {
	candidates []*types.RpcEndpoint
	current    atomic.Pointer[snapshot]
	client     *http.Client
	opts       Options
	logger     logger.Logger
	metrics    *metrics.Metrics
}

// NewTracker parses the candidate addresses. Until the first probe the
// snapshot holds every candidate in the given order.
func NewTracker(addresses []string, opts Options, lg logger.Logger, m *metrics.Metrics) (*Tracker, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	t := &Tracker{
		client:  client,
		opts:    opts,
		logger:  lg.NewSystem("health"),
		metrics: m,
	}
	for _, addr := range addresses {
		parsedURL, err := url.Parse(addr)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			t.logger.Warn("skipping invalid endpoint URL", "endpoint", addr, "err", err)
			continue
		}
		t.candidates = append(t.candidates, &types.RpcEndpoint{URL: parsedURL})
	}
	if len(t.candidates) == 0 {
		return nil, fmt.Errorf("no valid RPC endpoints provided")
	}

	initial := make([]types.RankedEndpoint, len(t.candidates))
	for i, ep := range t.candidates {
		initial[i] = types.RankedEndpoint{Endpoint: ep}
	}
	t.current.Store(&snapshot{ranked: initial})
	t.metrics.SnapshotSize.Set(float64(len(initial)))

	t.logger.Info("tracker initialized", "candidates", len(t.candidates))
	return t, nil
}

// Candidates returns the static candidate list.
func (t *Tracker) Candidates() []*types.RpcEndpoint {
	return t.candidates
}

// Current returns the latest ranked snapshot. The slice is shared and must
// not be modified.
func (t *Tracker) Current() []types.RankedEndpoint {
	return t.current.Load().ranked
}

// UpdatedAt is the completion time of the last probe, zero before the first.
func (t *Tracker) UpdatedAt() time.Time {
	return t.current.Load().updatedAt
}

// StatusError explains why an endpoint's /status was rejected.
type StatusError struct {
	Endpoint   string
	Reason     string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Reason, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: HTTP %d", e.Endpoint, e.Reason, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Reason)
	}
}

func (e *StatusError) Unwrap() error { return e.Err }

var errMissingSyncState = errors.New("sync_info.syncing missing from status")

// FetchStatus requests {base}/status from one endpoint and returns the raw
// body with its decoded form. Only HTTP 200 with a parseable body that
// reports its sync state succeeds.
func (t *Tracker) FetchStatus(ctx context.Context, ep *types.RpcEndpoint) (json.RawMessage, *types.StatusResponse, error) {
	endpointURL := ep.String()

	ctx, cancel := context.WithTimeout(ctx, t.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL+"/status", nil)
	if err != nil {
		return nil, nil, &StatusError{Endpoint: endpointURL, Reason: "request_creation", Err: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, &StatusError{Endpoint: endpointURL, Reason: "http_do", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &StatusError{Endpoint: endpointURL, Reason: "http_status", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &StatusError{Endpoint: endpointURL, Reason: "read_body", Err: err}
	}

	var status types.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, nil, &StatusError{Endpoint: endpointURL, Reason: "json_parse", Err: err}
	}
	if status.SyncInfo.Syncing == nil {
		return nil, nil, &StatusError{Endpoint: endpointURL, Reason: "json_parse", Err: errMissingSyncState}
	}
	return body, &status, nil
}

// probe returns the endpoint's latency when it is reachable and synced.
func (t *Tracker) probe(ctx context.Context, ep *types.RpcEndpoint) (time.Duration, error) {
	endpointURL := ep.String()

	startTime := time.Now()
	_, status, err := t.FetchStatus(ctx, ep)
	latency := time.Since(startTime)
	t.metrics.ProbeDuration.WithLabelValues(endpointURL).Observe(latency.Seconds())
	if err != nil {
		return 0, err
	}

	if !status.Synced() {
		return 0, &StatusError{Endpoint: endpointURL, Reason: "syncing"}
	}
	return latency, nil
}

// ProbeAll probes every candidate concurrently, ranks the ones that answered
// as synced by latency and swaps the result in as the new snapshot.
func (t *Tracker) ProbeAll(ctx context.Context) []types.RankedEndpoint {
	previous := t.Current()
	results := make([]*types.RankedEndpoint, len(t.candidates))
	failures := make([]error, len(t.candidates))

	var g errgroup.Group
	if t.opts.Concurrency > 0 {
		g.SetLimit(t.opts.Concurrency)
	}
	for i, ep := range t.candidates {
		g.Go(func() error {
			latency, err := t.probe(ctx, ep)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = &types.RankedEndpoint{Endpoint: ep, Latency: latency}
			return nil
		})
	}
	_ = g.Wait()

	// A cancelled round saw every probe fail; keep the old snapshot.
	if ctx.Err() != nil {
		return previous
	}

	ranked := make([]types.RankedEndpoint, 0, len(t.candidates))
	for i, ep := range t.candidates {
		endpointURL := ep.String()
		if r := results[i]; r != nil {
			ranked = append(ranked, *r)
			t.metrics.EndpointLatency.WithLabelValues(endpointURL).Set(r.Latency.Seconds())
			t.metrics.EndpointIsActive.WithLabelValues(endpointURL).Set(1)
			continue
		}

		t.metrics.EndpointIsActive.WithLabelValues(endpointURL).Set(0)
		reason := "unknown"
		if se, ok := failures[i].(*StatusError); ok {
			reason = se.Reason
		}
		t.metrics.ProbeErrorsTotal.WithLabelValues(endpointURL, reason).Inc()
		if contains(previous, ep) {
			t.logger.Error("removing rpc", "endpoint", endpointURL, "reason", reason, "err", failures[i])
		} else if t.opts.Verbose {
			t.logger.Debug("rpc still unavailable", "endpoint", endpointURL, "err", failures[i])
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Latency < ranked[j].Latency
	})

	t.current.Store(&snapshot{ranked: ranked, updatedAt: time.Now()})
	t.metrics.SnapshotSize.Set(float64(len(ranked)))

	if len(ranked) == 0 {
		t.logger.Warn("no synced endpoints found")
	} else {
		t.logger.Info("endpoint snapshot refreshed",
			"available", len(ranked), "candidates", len(t.candidates),
			"best", ranked[0].Endpoint.String(), "latency", ranked[0].Latency)
	}
	return ranked
}

// Start probes every interval until ctx is done. A zero interval disables
// periodic probing; refreshes then only happen on demand.
func (t *Tracker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.metrics.RefreshesTotal.WithLabelValues("periodic").Inc()
				t.ProbeAll(ctx)
			case <-ctx.Done():
				t.logger.Info("periodic checker stopping")
				return
			}
		}
	}()
	t.logger.Info("periodic endpoint checker started", "interval", interval)
}

func contains(ranked []types.RankedEndpoint, ep *types.RpcEndpoint) bool {
	for _, r := range ranked {
		if r.Endpoint == ep {
			return true
		}
	}
	return false
}
