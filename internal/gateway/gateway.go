package gateway

import (
	"context"
	"time"

	"near-rpc-provider/internal/logger"
	"near-rpc-provider/internal/metrics"
	"near-rpc-provider/internal/types"
)

// Dispatcher sends one JSON-RPC call with failover across endpoints.
type Dispatcher interface {
	CallRPCRequest(ctx context.Context, method string, params any, timeout time.Duration) (*types.Response, error)
}

// Snapshot exposes the ranked endpoints the dispatcher is using.
type Snapshot interface {
	Current() []types.RankedEndpoint
	UpdatedAt() time.Time
}

// Gateway relays JSON-RPC requests from local clients through the
// dispatcher, so clients get endpoint ranking and failover without a NEAR
// client of their own.
type Gateway struct {
	dispatcher     Dispatcher
	snapshot       Snapshot
	requestTimeout time.Duration
	logger         logger.Logger
	metrics        *metrics.Metrics
}

// NewGateway builds the relay. A zero requestTimeout uses the dispatcher's
// configured timeout.
func NewGateway(d Dispatcher, s Snapshot, requestTimeout time.Duration, lg logger.Logger, m *metrics.Metrics) *Gateway {
	gw := &Gateway{
		dispatcher:     d,
		snapshot:       s,
		requestTimeout: requestTimeout,
		logger:         lg.NewSystem("gateway"),
		metrics:        m,
	}
	gw.logger.Info("gateway initialized", "endpoints", len(s.Current()))
	return gw
}
