package resources

import (
	"sync"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// Proxies leases proxy addresses in non-exclusive batches: a proxy may be
// handed to many downloaders concurrently, and is never reclaimed. The
// idle set is a subset of master; it is replenished wholesale from master
// whenever a request would drain it below the requested batch size.
type Proxies struct {
	mu     sync.Mutex
	master []rpcwire.ProxyAddress
	idle   []rpcwire.ProxyAddress
}

// NewProxies starts with both sets empty; the Proxy Refresher populates
// master on its first tick.
func NewProxies() *Proxies {
	return &Proxies{}
}

// Request pops up to size proxies from idle, first refilling idle from
// master if idle holds fewer than size. May return fewer than size if
// master itself is small.
func (p *Proxies) Request(size int) []rpcwire.ProxyAddress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) < size {
		p.idle = append([]rpcwire.ProxyAddress(nil), p.master...)
	}
	if size > len(p.idle) {
		size = len(p.idle)
	}
	batch := append([]rpcwire.ProxyAddress(nil), p.idle[:size]...)
	p.idle = p.idle[size:]
	return batch
}

// Replace atomically swaps the entire master set, as the Proxy Refresher
// does on each tick. The idle set is left untouched; it catches up to the
// new master the next time Request hits its low watermark.
func (p *Proxies) Replace(fresh []rpcwire.ProxyAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.master = fresh
}

// MasterSize reports the size of the master set, for observability.
func (p *Proxies) MasterSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.master)
}
