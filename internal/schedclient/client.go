// Package schedclient implements the downloader- and pipeline-side
// counterpart to internal/scheduler: a low-level RPC client over
// internal/rpcwire, and a link-submission fan-in queue (see fanin.go)
// grounded on the original sinaspider.scheduler.SchedulerServiceClient.
package schedclient

import (
	"fmt"
	"net"
	"time"

	"github.com/webstalk/webstalk/internal/rpcwire"
)

// Client is a single-connection RPC client; it is not safe for concurrent
// use by multiple goroutines (mirroring the original Thrift client, whose
// transport is single-threaded), so callers either serialize access or
// use FanIn, which owns one Client internally.
type Client struct {
	addr string
	conn *rpcwire.Conn
}

// NewClient constructs a Client that dials lazily on first call.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Open dials the Scheduler if not already connected.
func (c *Client) Open() error {
	if c.conn != nil {
		return nil
	}
	nc, err := net.DialTimeout("tcp", c.addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("schedclient: dial %s: %w", c.addr, err)
	}
	c.conn = rpcwire.NewConn(nc)
	return nil
}

// Close tears down the transport, if open.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) roundTrip(req rpcwire.Envelope) (rpcwire.Reply, error) {
	if err := c.Open(); err != nil {
		return rpcwire.Reply{}, err
	}
	if err := c.conn.WriteEnvelope(req); err != nil {
		c.Close()
		return rpcwire.Reply{}, fmt.Errorf("schedclient: write %s: %w", req.Op, err)
	}
	reply, err := c.conn.ReadReply()
	if err != nil {
		c.Close()
		return rpcwire.Reply{}, fmt.Errorf("schedclient: read %s: %w", req.Op, err)
	}
	return reply, nil
}

// RegisterDownloader registers name with the Scheduler.
func (c *Client) RegisterDownloader(name string) error {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpRegisterDownloader, Name: name})
	if err != nil {
		return err
	}
	return rpcwire.ReplyError(rpcwire.OpRegisterDownloader, reply)
}

// UnregisterDownloader unregisters name.
func (c *Client) UnregisterDownloader(name string) error {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpUnregisterDownloader, Name: name})
	if err != nil {
		return err
	}
	return rpcwire.ReplyError(rpcwire.OpUnregisterDownloader, reply)
}

// RequestUserIdentity leases (or re-fetches the already-held) identity for
// name.
func (c *Client) RequestUserIdentity(name string) (rpcwire.UserIdentity, error) {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpRequestUserIdentity, Name: name})
	if err != nil {
		return rpcwire.UserIdentity{}, err
	}
	if err := rpcwire.ReplyError(rpcwire.OpRequestUserIdentity, reply); err != nil {
		return rpcwire.UserIdentity{}, err
	}
	return reply.Identity, nil
}

// ResignUserIdentity gives back identity, failing with NOT_OWNED if name
// does not currently hold it.
func (c *Client) ResignUserIdentity(identity rpcwire.UserIdentity, name string) error {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpResignUserIdentity, Name: name, Identity: identity})
	if err != nil {
		return err
	}
	return rpcwire.ReplyError(rpcwire.OpResignUserIdentity, reply)
}

// GrabLinks pops up to size links from the general LINK class.
func (c *Client) GrabLinks(size int) ([]rpcwire.Link, error) {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpGrabLinks, Size: size})
	if err != nil {
		return nil, err
	}
	return reply.Links, rpcwire.ReplyError(rpcwire.OpGrabLinks, reply)
}

// SubmitLinks submits links into the general LINK class.
func (c *Client) SubmitLinks(links []rpcwire.Link) error {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpSubmitLinks, Links: links})
	if err != nil {
		return err
	}
	return rpcwire.ReplyError(rpcwire.OpSubmitLinks, reply)
}

// GrabTopicLinks pops up to size links from the TOPIC_LINK FIFO.
func (c *Client) GrabTopicLinks(size int) ([]rpcwire.Link, error) {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpGrabTopicLinks, Size: size})
	if err != nil {
		return nil, err
	}
	return reply.Links, rpcwire.ReplyError(rpcwire.OpGrabTopicLinks, reply)
}

// SubmitTopicLinks submits links into the TOPIC_LINK FIFO.
func (c *Client) SubmitTopicLinks(links []rpcwire.Link) error {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpSubmitTopicLinks, Links: links})
	if err != nil {
		return err
	}
	return rpcwire.ReplyError(rpcwire.OpSubmitTopicLinks, reply)
}

// RequestProxies asks for up to size proxies.
func (c *Client) RequestProxies(name string, size int) ([]rpcwire.ProxyAddress, error) {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpRequestProxies, Name: name, Size: size})
	if err != nil {
		return nil, err
	}
	return reply.Proxies, rpcwire.ReplyError(rpcwire.OpRequestProxies, reply)
}

// RequestCookie asks for a session cookie, returning the sentinel if none
// is available.
func (c *Client) RequestCookie(name string) (rpcwire.Cookie, error) {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpRequestCookie, Name: name})
	if err != nil {
		return rpcwire.Cookie{}, err
	}
	return reply.Cookie, rpcwire.ReplyError(rpcwire.OpRequestCookie, reply)
}

// SubmitCookies hands a freshly logged-in batch of cookies to the
// Scheduler.
func (c *Client) SubmitCookies(cookies []rpcwire.Cookie) error {
	reply, err := c.roundTrip(rpcwire.Envelope{Op: rpcwire.OpSubmitCookies, Cookies: cookies})
	if err != nil {
		return err
	}
	return rpcwire.ReplyError(rpcwire.OpSubmitCookies, reply)
}
