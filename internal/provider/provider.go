package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"near-rpc-provider/internal/config"
	"near-rpc-provider/internal/health"
	"near-rpc-provider/internal/logger"
	"near-rpc-provider/internal/metrics"
	"near-rpc-provider/internal/rpcerrors"
	"near-rpc-provider/internal/types"
	"near-rpc-provider/internal/utils"
)

const tracerName = "near-rpc-provider/provider"

// Options tunes the dispatcher. Zero values take the defaults below.
type Options struct {
	RequestTimeout   time.Duration
	ProbeTimeout     time.Duration
	RefreshCooldown  time.Duration
	PollInterval     time.Duration
	ProbeConcurrency int
	HTTPClient       *http.Client
	Verbose          bool
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 5 * time.Second
	}
	if o.RefreshCooldown <= 0 {
		o.RefreshCooldown = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RequestTimeout:   cfg.RequestTimeout,
		ProbeTimeout:     cfg.ProbeTimeout,
		RefreshCooldown:  cfg.RefreshCooldown,
		PollInterval:     cfg.PollInterval,
		ProbeConcurrency: cfg.ProbeConcurrency,
		Verbose:          cfg.Verbose,
	}
}

// Provider dispatches JSON-RPC calls to the best ranked endpoint and fails
// over to the next one on transport errors.
type Provider struct {
	tracker *health.Tracker
	client  *http.Client
	opts    Options
	logger  logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	refreshMu   sync.Mutex
	lastRefresh time.Time
	refreshes   singleflight.Group
}

// New builds a provider. addr is one address, a list of addresses or a
// utils.HostPort.
func New(addr any, opts Options, lg logger.Logger, m *metrics.Metrics) (*Provider, error) {
	addresses, err := utils.NormalizeAddresses(addr)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	tracker, err := health.NewTracker(addresses, health.Options{
		ProbeTimeout: opts.ProbeTimeout,
		Concurrency:  opts.ProbeConcurrency,
		HTTPClient:   opts.HTTPClient,
		Verbose:      opts.Verbose,
	}, lg, m)
	if err != nil {
		return nil, err
	}

	return &Provider{
		tracker: tracker,
		client:  opts.HTTPClient,
		opts:    opts,
		logger:  lg.NewSystem("provider"),
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Tracker exposes the endpoint health tracker.
func (p *Provider) Tracker() *health.Tracker {
	return p.tracker
}

// refresh runs one probe round, sharing it with any round already in
// flight. The round is detached from ctx so a cancelled caller cannot cut it
// short and leave an empty snapshot behind.
func (p *Provider) refresh(ctx context.Context) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return p.refreshes.DoChan("probe", func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("endpoint refresh panicked", "panic", r)
				err = fmt.Errorf("endpoint refresh panicked: %v", r)
			}
		}()
		return p.tracker.ProbeAll(detached), nil
	})
}

// ensureFresh starts a refresh when the snapshot is older than the cooldown
// or empty. A non-empty snapshot keeps serving while the refresh runs in the
// background; an empty one makes the caller wait for the refresh.
func (p *Provider) ensureFresh(ctx context.Context) error {
	empty := len(p.tracker.Current()) == 0

	p.refreshMu.Lock()
	stale := time.Since(p.lastRefresh) > p.opts.RefreshCooldown
	if !stale && !empty {
		p.refreshMu.Unlock()
		return nil
	}
	p.lastRefresh = time.Now()
	p.refreshMu.Unlock()

	if !empty {
		p.metrics.RefreshesTotal.WithLabelValues("background").Inc()
		// Result intentionally dropped; failures are logged inside refresh.
		_ = p.refresh(ctx)
		return nil
	}

	p.logger.Warn("no RPC available, rechecking")
	p.metrics.RefreshesTotal.WithLabelValues("forced").Inc()
	select {
	case <-p.refresh(ctx):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckAvailableRPCs probes every candidate now and returns the new ranked
// snapshot.
func (p *Provider) CheckAvailableRPCs(ctx context.Context) ([]types.RankedEndpoint, error) {
	p.refreshMu.Lock()
	p.lastRefresh = time.Now()
	p.refreshMu.Unlock()

	p.metrics.RefreshesTotal.WithLabelValues("manual").Inc()
	select {
	case res := <-p.refresh(ctx):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]types.RankedEndpoint), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallRPCRequest sends one JSON-RPC envelope, walking the ranked endpoints
// in order until one answers with a 2xx and a parseable body. The body is
// returned unclassified; a zero timeout uses the configured one.
func (p *Provider) CallRPCRequest(ctx context.Context, method string, params any, timeout time.Duration) (*types.Response, error) {
	if timeout <= 0 {
		timeout = p.opts.RequestTimeout
	}

	if err := p.ensureFresh(ctx); err != nil {
		return nil, err
	}

	ranked := p.tracker.Current()
	if len(ranked) == 0 {
		return nil, &rpcerrors.UnavailableError{Reason: "no RPC available"}
	}

	payload, err := json.Marshal(types.NewRequest(method, params))
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s request", method)
	}

	var attempts []*rpcerrors.TransportError
	for _, r := range ranked {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, terr := p.post(ctx, r.Endpoint, payload, timeout)
		if terr != nil {
			attempts = append(attempts, terr)
			p.metrics.FailoversTotal.WithLabelValues(r.Endpoint.String()).Inc()
			p.logger.Error("rpc error", "method", method, "endpoint", r.Endpoint.String(), "err", terr.Err, "status", terr.StatusCode)
			continue
		}

		trace.SpanFromContext(ctx).SetAttributes(attribute.String("rpc.endpoint", r.Endpoint.String()))
		if p.opts.Verbose {
			p.logger.Debug("rpc call served", "method", method, "endpoint", r.Endpoint.String(), "attempt", len(attempts)+1)
		}
		return resp, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &rpcerrors.UnavailableError{Reason: "RPC not available", Attempts: attempts}
}

// errEmptyResponse marks a 2xx body that carries neither a result nor an
// error member.
var errEmptyResponse = errors.New("response has no result or error")

func (p *Provider) post(ctx context.Context, ep *types.RpcEndpoint, payload []byte, timeout time.Duration) (*types.Response, *rpcerrors.TransportError) {
	endpointURL := ep.String()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &rpcerrors.TransportError{Endpoint: endpointURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &rpcerrors.TransportError{Endpoint: endpointURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &rpcerrors.TransportError{
			Endpoint:   endpointURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &rpcerrors.TransportError{Endpoint: endpointURL, Err: errors.Wrap(err, "read response")}
	}

	var out types.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &rpcerrors.TransportError{Endpoint: endpointURL, Err: errors.Wrap(err, "decode response")}
	}
	if !out.HasError() && !out.HasResult() {
		return nil, &rpcerrors.TransportError{Endpoint: endpointURL, Err: errEmptyResponse}
	}
	return &out, nil
}

// JSONRPC calls method with the configured timeout and returns its result.
func (p *Provider) JSONRPC(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return p.JSONRPCWithTimeout(ctx, method, params, 0)
}

// JSONRPCWithTimeout calls method and returns its result. An error member in
// the response is classified into a *rpcerrors.RPCError.
func (p *Provider) JSONRPCWithTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	ctx, span := p.tracer.Start(ctx, "near.jsonrpc", trace.WithAttributes(attribute.String("rpc.method", method)))
	defer span.End()

	startTime := time.Now()
	defer func() {
		p.metrics.RPCRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	content, err := p.CallRPCRequest(ctx, method, params, timeout)
	if err != nil {
		p.metrics.RPCRequestsTotal.WithLabelValues(method, "unavailable").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "rpc unavailable")
		return nil, err
	}

	if content.HasError() {
		rpcErr := rpcerrors.Classify(content.Error)
		p.metrics.RPCRequestsTotal.WithLabelValues(method, "rpc_error").Inc()
		p.metrics.RPCErrorsTotal.WithLabelValues(rpcErr.Kind.String()).Inc()
		span.SetAttributes(attribute.String("rpc.error_kind", rpcErr.Kind.String()))
		span.SetStatus(codes.Error, rpcErr.Kind.String())
		return nil, rpcErr
	}

	p.metrics.RPCRequestsTotal.WithLabelValues(method, "ok").Inc()
	return content.Result, nil
}
