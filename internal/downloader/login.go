package downloader

import "github.com/webstalk/webstalk/internal/rpcwire"

// Loginer is the collaborator a Worker calls when a fetch hits
// ErrLoginRequired: it must perform whatever site-specific login flow
// produces a fresh session cookie for identity, then submit it to the
// Scheduler. Grounded on the original sinaspider.sina_login module's
// SinaSessionLoginer.login(identity) contract; its cryptographic/HTML-
// form internals are out of scope here (spec.md §1 — login flow is an
// external collaborator with a defined interface only).
type Loginer interface {
	// Login performs a fresh login for identity and returns the cookie
	// to use for subsequent requests. Implementations are expected to
	// also submit_cookies to the Scheduler so other workers benefit.
	Login(identity rpcwire.UserIdentity) (rpcwire.Cookie, error)
}

// NoopLoginer is the only concrete Loginer shipped with this repo: it
// always fails, so a deployment without a real login flow wired in
// degrades to waiting on _update_cookie's Scheduler poll (see worker.go)
// rather than silently looping forever inside a fake success.
type NoopLoginer struct{}

func (NoopLoginer) Login(rpcwire.UserIdentity) (rpcwire.Cookie, error) {
	return rpcwire.Cookie{}, errLoginNotImplemented
}

var errLoginNotImplemented = loginNotImplementedError{}

type loginNotImplementedError struct{}

func (loginNotImplementedError) Error() string {
	return "downloader: no Loginer configured for this deployment"
}
