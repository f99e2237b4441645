package chain

import (
	"sync"

	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
)

// EVMClientProvider hands out one shared EVMClient per configured
// network, dialing lazily on first use.
type EVMClientProvider struct {
	registry *config.Registry
	rpcCfg   config.RpcClientConfig
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[string]*EVMClient
}

var _ port.ChainClientProvider = (*EVMClientProvider)(nil)

func NewEVMClientProvider(registry *config.Registry, rpcCfg config.RpcClientConfig, logger *zap.Logger) *EVMClientProvider {
	return &EVMClientProvider{
		registry: registry,
		rpcCfg:   rpcCfg,
		logger:   logger.Named("chain_provider"),
		clients:  make(map[string]*EVMClient),
	}
}

// Client returns the shared client for a network, dialing it if this
// is the first request.
func (p *EVMClientProvider) Client(network string) (port.ChainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[network]; ok {
		return client, nil
	}

	def, err := p.registry.Network(network)
	if err != nil {
		return nil, err
	}

	client, err := NewEVMClient(def, p.rpcCfg)
	if err != nil {
		return nil, err
	}

	p.logger.Info("connected to network RPC",
		zap.String("network", def.Name),
		zap.Int64("chain_id", def.ChainID))

	p.clients[network] = client
	return client, nil
}

// Close releases every dialed client.
func (p *EVMClientProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, client := range p.clients {
		client.ethClient.Close()
		delete(p.clients, name)
	}
}
