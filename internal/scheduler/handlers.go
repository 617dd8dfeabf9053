package scheduler

import (
	"context"
	"log/slog"

	"github.com/webstalk/webstalk/internal/observability"
	"github.com/webstalk/webstalk/internal/rpcwire"
)

// Handle dispatches one request envelope against state and returns the
// reply to send back. It never panics: handler-level failures come back
// as a failed Reply, matching spec.md §4.3's "any other exception ...
// logged, connection torn down" only applies to truly unexpected faults,
// not the documented error conditions handled here.
//
// Handle holds st's single process-wide mutex across the whole switch,
// per spec.md §4.3/§5, so a registration check and the resource lease it
// gates (OpRequestUserIdentity's IsRegistered-then-Identities.Request, in
// particular) happen as one atomic step rather than two independently
// locked calls. metrics may be nil, as it is in tests that call Handle
// directly; every method on it tolerates a nil receiver.
func Handle(ctx context.Context, logger *slog.Logger, st *State, metrics *observability.Metrics, req rpcwire.Envelope) rpcwire.Reply {
	metrics.IncRPCRequests()

	st.Lock()
	defer st.Unlock()

	var reply rpcwire.Reply
	switch req.Op {
	case rpcwire.OpRegisterDownloader:
		if already := st.RegisterDownloader(req.Name); already {
			logger.Warn("downloader re-registered", "name", req.Name)
		}
		metrics.SetActiveDownloaders(st.DownloaderCount())
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess}

	case rpcwire.OpUnregisterDownloader:
		if !st.UnregisterDownloader(req.Name) {
			reply = rpcwire.AsReply(rpcwire.ErrNotRegistered)
			break
		}
		metrics.SetActiveDownloaders(st.DownloaderCount())
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess}

	case rpcwire.OpRequestUserIdentity:
		if !st.IsRegistered(req.Name) {
			reply = rpcwire.AsReply(rpcwire.ErrNotRegistered)
			break
		}
		identity := st.Identities.Request(req.Name)
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess, Identity: identity}

	case rpcwire.OpResignUserIdentity:
		if err := st.Identities.Resign(req.Identity, req.Name); err != nil {
			reply = rpcwire.AsReply(rpcwire.ErrIdentityNotOwned)
			break
		}
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess}

	case rpcwire.OpGrabLinks:
		links := st.Frontier.Grab(ctx, req.Size, rpcwire.ClassLink)
		if len(links) == 0 {
			metrics.IncGrabEmpty()
		}
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess, Links: links}

	case rpcwire.OpSubmitLinks:
		st.Frontier.Submit(ctx, req.Links, rpcwire.ClassLink)
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess}

	case rpcwire.OpGrabTopicLinks:
		links := st.Frontier.Grab(ctx, req.Size, rpcwire.ClassTopicLink)
		if len(links) == 0 {
			metrics.IncGrabEmpty()
		}
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess, Links: links}

	case rpcwire.OpSubmitTopicLinks:
		st.Frontier.Submit(ctx, req.Links, rpcwire.ClassTopicLink)
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess}

	case rpcwire.OpRequestProxies:
		proxies := st.Proxies.Request(req.Size)
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess, Proxies: proxies}

	case rpcwire.OpRequestCookie:
		cookie := st.Cookies.Request()
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess, Cookie: cookie}

	case rpcwire.OpSubmitCookies:
		st.Cookies.Submit(req.Cookies)
		reply = rpcwire.Reply{Status: rpcwire.StatusSuccess}

	default:
		reply = rpcwire.AsReply(rpcwire.ErrUnknownOperation)
	}

	if reply.Status != rpcwire.StatusSuccess {
		metrics.IncRPCFailed()
	}
	return reply
}
