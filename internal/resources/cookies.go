package resources

import (
	"sync"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// Cookies leases session cookies non-exclusively: dispensed one at a time,
// cycling back through the by-user map on exhaustion. Ownership is not
// tracked, so the same cookie may be dispensed to more than one downloader
// over time — tolerated per the lease discipline, not a bug.
type Cookies struct {
	mu     sync.Mutex
	idle   []rpcwire.Cookie
	byUser map[string]rpcwire.Cookie
}

// NewCookies starts with both the idle set and by-user map empty; callers
// must SubmitCookies before Request returns anything but the sentinel.
func NewCookies() *Cookies {
	return &Cookies{byUser: make(map[string]rpcwire.Cookie)}
}

// Request pops one cookie from idle, refilling idle from the by-user map
// first if idle is empty. Returns rpcwire.NullCookie if both are empty.
func (c *Cookies) Request() rpcwire.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.idle) == 0 {
		for _, v := range c.byUser {
			c.idle = append(c.idle, v)
		}
	}
	if len(c.idle) == 0 {
		return rpcwire.NullCookie
	}
	cookie := c.idle[len(c.idle)-1]
	c.idle = c.idle[:len(c.idle)-1]
	return cookie
}

// Submit replaces the idle set with batch and updates the by-user map,
// keyed by Cookie.User with last-write-wins.
func (c *Cookies) Submit(batch []rpcwire.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idle = append([]rpcwire.Cookie(nil), batch...)
	for _, cookie := range batch {
		c.byUser[cookie.User] = cookie
	}
}
