package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-rpc-provider/internal/logger"
	"near-rpc-provider/internal/metrics"
	"near-rpc-provider/internal/rpcerrors"
	"near-rpc-provider/internal/utils"
)

type rpcRequest struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      string          `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
}

type rpcHandler func(req rpcRequest) (int, string)

type node struct {
	*httptest.Server
	posts    atomic.Int32
	statuses atomic.Int32

	mu       sync.Mutex
	requests []rpcRequest
}

func (n *node) lastRequest(t *testing.T) rpcRequest {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.requests)
	return n.requests[len(n.requests)-1]
}

type nodeOptions struct {
	syncing     bool
	statusDelay time.Duration
	statusGate  chan struct{}
}

func newNode(t *testing.T, opts nodeOptions, handle rpcHandler) *node {
	t.Helper()
	n := &node{}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/status" {
			n.statuses.Add(1)
			if opts.statusGate != nil {
				<-opts.statusGate
			}
			time.Sleep(opts.statusDelay)
			fmt.Fprintf(w, `{"chain_id":"testnet","sync_info":{"latest_block_height":7,"syncing":%t}}`, opts.syncing)
			return
		}

		n.posts.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req rpcRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.requests = append(n.requests, req)
		n.mu.Unlock()

		if handle == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		code, body := handle(req)
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(n.Server.Close)
	if opts.statusGate != nil {
		// Runs before Close so blocked handlers can finish.
		t.Cleanup(func() { close(opts.statusGate) })
	}
	return n
}

func okResult(result string) rpcHandler {
	return func(rpcRequest) (int, string) {
		return http.StatusOK, resultBody(result)
	}
}

func resultBody(result string) string {
	return `{"jsonrpc":"2.0","id":"dontcare","result":` + result + `}`
}

func errorBody(cause, data string) string {
	return `{"jsonrpc":"2.0","id":"dontcare","error":{"name":"HANDLER_ERROR","cause":{"name":"` + cause +
		`","info":{}},"code":-32000,"message":"Server error","data":` + data + `}}`
}

func testOptions() Options {
	return Options{
		RequestTimeout:  2 * time.Second,
		ProbeTimeout:    time.Second,
		RefreshCooldown: time.Hour,
		PollInterval:    10 * time.Millisecond,
	}
}

func newTestProvider(t *testing.T, opts Options, addrs ...string) (*Provider, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	p, err := New(addrs, opts, logger.NewNop(), m)
	require.NoError(t, err)
	return p, m
}

// markFresh pins the snapshot for the cooldown window so a test controls
// the endpoint order without a probe.
func markFresh(p *Provider) {
	p.refreshMu.Lock()
	p.lastRefresh = time.Now()
	p.refreshMu.Unlock()
}

func TestNew_AddressForms(t *testing.T) {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())

	p, err := New("http://a.example/", Options{}, logger.NewNop(), m)
	require.NoError(t, err)
	require.Len(t, p.Tracker().Candidates(), 1)
	assert.Equal(t, "http://a.example", p.Tracker().Candidates()[0].String())

	p, err = New(utils.HostPort{Host: "127.0.0.1", Port: 3030}, Options{}, logger.NewNop(), m)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3030", p.Tracker().Candidates()[0].String())

	_, err = New(42, Options{}, logger.NewNop(), m)
	assert.Error(t, err)

	_, err = New([]string{"no-scheme"}, Options{}, logger.NewNop(), m)
	assert.Error(t, err)
}

func TestJSONRPC_UsesRankedOrder(t *testing.T) {
	a := newNode(t, nodeOptions{syncing: true}, okResult(`"a"`))
	b := newNode(t, nodeOptions{statusDelay: 80 * time.Millisecond}, okResult(`"b"`))
	c := newNode(t, nodeOptions{statusDelay: 5 * time.Millisecond}, okResult(`"c"`))

	p, _ := newTestProvider(t, testOptions(), a.URL, b.URL, c.URL)
	ranked, err := p.CheckAvailableRPCs(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, c.URL, ranked[0].Endpoint.String())
	assert.Equal(t, b.URL, ranked[1].Endpoint.String())

	result, err := p.JSONRPC(context.Background(), "status_check", []any{})
	require.NoError(t, err)
	assert.JSONEq(t, `"c"`, string(result))

	assert.Equal(t, int32(1), c.posts.Load())
	assert.Equal(t, int32(0), b.posts.Load())
	assert.Equal(t, int32(0), a.posts.Load())

	req := c.lastRequest(t)
	assert.Equal(t, "status_check", req.Method)
	assert.Equal(t, "dontcare", req.ID)
	assert.Equal(t, "2.0", req.Jsonrpc)
}

func TestJSONRPC_EmptySnapshotFailsWithoutPost(t *testing.T) {
	n := newNode(t, nodeOptions{syncing: true}, okResult(`"never"`))
	p, m := newTestProvider(t, testOptions(), n.URL)

	ranked, err := p.CheckAvailableRPCs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ranked)

	_, err = p.JSONRPC(context.Background(), "block", []any{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcerrors.RpcUnavailable)

	var unavailable *rpcerrors.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Empty(t, unavailable.Attempts)

	assert.Equal(t, int32(0), n.posts.Load())
	// The empty snapshot forced a second, awaited probe.
	assert.Equal(t, int32(2), n.statuses.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("forced")))
}

func TestJSONRPC_FailsOverToNextEndpoint(t *testing.T) {
	bad := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusServiceUnavailable, "busy"
	})
	good := newNode(t, nodeOptions{}, okResult(`{"height":1}`))
	spare := newNode(t, nodeOptions{}, okResult(`{"height":2}`))

	p, m := newTestProvider(t, testOptions(), bad.URL, good.URL, spare.URL)
	markFresh(p)

	result, err := p.JSONRPC(context.Background(), "block", []any{"final"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"height":1}`, string(result))

	assert.Equal(t, int32(1), bad.posts.Load())
	assert.Equal(t, int32(1), good.posts.Load())
	assert.Equal(t, int32(0), spare.posts.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FailoversTotal.WithLabelValues(bad.URL)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("block", "ok")))
}

func TestJSONRPC_AllEndpointsFail(t *testing.T) {
	status := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusBadGateway, ""
	})
	garbage := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusOK, "<html>not json</html>"
	})
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	p, m := newTestProvider(t, testOptions(), status.URL, garbage.URL, down.URL)
	markFresh(p)

	_, err := p.JSONRPC(context.Background(), "block", []any{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcerrors.RpcUnavailable)

	var unavailable *rpcerrors.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Attempts, 3)
	assert.Equal(t, http.StatusBadGateway, unavailable.Attempts[0].StatusCode)
	assert.Equal(t, garbage.URL, unavailable.Attempts[1].Endpoint)
	assert.Equal(t, down.URL, unavailable.Attempts[2].Endpoint)

	assert.Equal(t, int32(1), status.posts.Load())
	assert.Equal(t, int32(1), garbage.posts.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("block", "unavailable")))
}

func TestJSONRPC_ContentlessBodiesFailOver(t *testing.T) {
	empty := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusOK, `{}`
	})
	null := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusOK, `null`
	})
	bare := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":"dontcare"}`
	})
	nullResult := newNode(t, nodeOptions{}, okResult(`null`))

	p, m := newTestProvider(t, testOptions(), empty.URL, null.URL, bare.URL, nullResult.URL)
	markFresh(p)

	_, err := p.JSONRPC(context.Background(), "block", []any{1})
	assert.ErrorIs(t, err, rpcerrors.RpcUnavailable)

	var unavailable *rpcerrors.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Attempts, 4)
	for _, attempt := range unavailable.Attempts {
		assert.ErrorIs(t, attempt, errEmptyResponse)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FailoversTotal.WithLabelValues(empty.URL)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("block", "ok")))

	_, err = p.GetAccount(context.Background(), "alice.near", "")
	assert.ErrorIs(t, err, rpcerrors.RpcUnavailable)
}

func TestJSONRPC_ContentlessBodyThenGoodEndpoint(t *testing.T) {
	empty := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusOK, `{}`
	})
	good := newNode(t, nodeOptions{}, okResult(`{"height":3}`))

	p, _ := newTestProvider(t, testOptions(), empty.URL, good.URL)
	markFresh(p)

	result, err := p.JSONRPC(context.Background(), "block", []any{3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"height":3}`, string(result))
	assert.Equal(t, int32(1), empty.posts.Load())
	assert.Equal(t, int32(1), good.posts.Load())
}

func TestJSONRPC_RequestTimeoutIsTransportFailure(t *testing.T) {
	slow := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		time.Sleep(200 * time.Millisecond)
		return http.StatusOK, resultBody(`"slow"`)
	})
	fast := newNode(t, nodeOptions{}, okResult(`"fast"`))

	p, _ := newTestProvider(t, testOptions(), slow.URL, fast.URL)
	markFresh(p)

	result, err := p.JSONRPCWithTimeout(context.Background(), "block", []any{1}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.JSONEq(t, `"fast"`, string(result))
}

func TestJSONRPC_ClassifiesErrorBody(t *testing.T) {
	data := `{"TxExecutionError":{"InvalidTxError":{"NotEnoughBalance":{"signer_id":"alice.near","balance":"1","cost":"2"}}}}`
	n := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusOK, errorBody("INVALID_TRANSACTION", data)
	})
	p, m := newTestProvider(t, testOptions(), n.URL)
	markFresh(p)

	_, err := p.JSONRPC(context.Background(), "broadcast_tx_commit", []string{"tx"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcerrors.NotEnoughBalance)

	var rpcErr *rpcerrors.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "INVALID_TRANSACTION", rpcErr.Cause)
	assert.JSONEq(t, `{"signer_id":"alice.near","balance":"1","cost":"2"}`, string(rpcErr.Body))
	assert.Contains(t, string(rpcErr.Envelope), `"HANDLER_ERROR"`)

	// An RPC error is an answer: no failover.
	assert.Equal(t, int32(1), n.posts.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCErrorsTotal.WithLabelValues("NotEnoughBalance")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("broadcast_tx_commit", "rpc_error")))
}

func TestJSONRPC_UnknownCauseIsInternal(t *testing.T) {
	n := newNode(t, nodeOptions{}, func(rpcRequest) (int, string) {
		return http.StatusOK, errorBody("SOMETHING_NEW", `"details"`)
	})
	p, _ := newTestProvider(t, testOptions(), n.URL)
	markFresh(p)

	_, err := p.JSONRPC(context.Background(), "block", []any{1})
	kind, ok := rpcerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rpcerrors.Internal, kind)
}

func TestJSONRPC_StaleSnapshotRefreshesInBackground(t *testing.T) {
	gate := make(chan struct{})
	n := newNode(t, nodeOptions{statusGate: gate}, okResult(`"ok"`))

	opts := testOptions()
	opts.RefreshCooldown = time.Minute
	p, m := newTestProvider(t, opts, n.URL)

	// The first call sees a stale snapshot and must not wait for the probe,
	// which is held until gate is closed.
	done := make(chan error, 1)
	go func() {
		_, err := p.JSONRPC(context.Background(), "block", []any{1})
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("call blocked on background refresh")
	}

	// Within the cooldown window no further refresh is triggered.
	_, err := p.JSONRPC(context.Background(), "block", []any{2})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return n.statuses.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("background")))
	assert.Equal(t, int32(2), n.posts.Load())
}

func TestJSONRPC_ContextCanceled(t *testing.T) {
	n := newNode(t, nodeOptions{}, okResult(`"ok"`))
	p, _ := newTestProvider(t, testOptions(), n.URL)
	markFresh(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.JSONRPC(ctx, "block", []any{1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), n.posts.Load())
}

func TestCheckAvailableRPCs_ConcurrentCallsShareProbe(t *testing.T) {
	n := newNode(t, nodeOptions{statusDelay: 50 * time.Millisecond}, nil)
	p, _ := newTestProvider(t, testOptions(), n.URL)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ranked, err := p.CheckAvailableRPCs(context.Background())
			assert.NoError(t, err)
			assert.Len(t, ranked, 1)
		}()
	}
	wg.Wait()

	assert.Less(t, n.statuses.Load(), int32(5))
}
