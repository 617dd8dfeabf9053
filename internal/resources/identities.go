// Package resources implements the Scheduler's three lease disciplines over
// UserIdentity, Cookie, and ProxyAddress pools: exclusive+sticky,
// non-exclusive cycle, and non-exclusive batch, respectively. Each follows
// the teacher's ProxyManager shape: a mutex guarding a slice/map with
// swap-the-whole-set semantics for refresh, generalized to the lease
// discipline each resource requires.
package resources

import (
	"errors"
	"sync"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// ErrNotOwned is returned by ResignIdentity when the caller does not
// currently hold the identity it is trying to resign.
var ErrNotOwned = errors.New("resources: identity not owned by caller")

// Identities leases UserIdentity values exclusively and stickily: once a
// downloader holds one, repeated requests return the same value until it
// unregisters or explicitly resigns.
type Identities struct {
	mu sync.Mutex

	configured []rpcwire.UserIdentity // the full configured roster, used to refill idle
	idle       []rpcwire.UserIdentity
	owner      map[string]rpcwire.UserIdentity // downloader name -> held identity
}

// NewIdentities seeds the idle set from the configured roster. An empty
// roster is accepted; Request will simply never find one to hand out.
func NewIdentities(configured []rpcwire.UserIdentity) *Identities {
	idle := make([]rpcwire.UserIdentity, len(configured))
	copy(idle, configured)
	return &Identities{
		configured: configured,
		idle:       idle,
		owner:      make(map[string]rpcwire.UserIdentity),
	}
}

// Request returns the identity already held by downloader, if any;
// otherwise it pops one from idle, refilling idle from the configured
// roster first if necessary. Returns the zero UserIdentity if the roster
// is empty.
func (p *Identities) Request(downloader string) rpcwire.UserIdentity {
	p.mu.Lock()
	defer p.mu.Unlock()

	if held, ok := p.owner[downloader]; ok {
		return held
	}
	if len(p.idle) == 0 {
		p.idle = append(p.idle, p.configured...)
	}
	if len(p.idle) == 0 {
		return rpcwire.UserIdentity{}
	}
	identity := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	p.owner[downloader] = identity
	return identity
}

// Resign returns identity to idle, provided downloader currently holds it.
func (p *Identities) Resign(identity rpcwire.UserIdentity, downloader string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	held, ok := p.owner[downloader]
	if !ok || held != identity {
		return ErrNotOwned
	}
	delete(p.owner, downloader)
	p.idle = append(p.idle, identity)
	return nil
}

// Reclaim is called on downloader unregister: it silently returns any
// identity the downloader held to idle. A no-op if it held none.
func (p *Identities) Reclaim(downloader string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	held, ok := p.owner[downloader]
	if !ok {
		return
	}
	delete(p.owner, downloader)
	p.idle = append(p.idle, held)
}
