package rpcwire

import "errors"

// Sentinel errors a Scheduler handler can return. Only the message of an
// error crosses the wire (see AsReply); the client side sees an *Error.
var (
	// ErrNotRegistered is returned when a downloader name used in a call
	// other than register_downloader is not currently registered.
	ErrNotRegistered = errors.New("rpcwire: downloader not registered")

	// ErrAlreadyRegistered names a duplicate registration; register_downloader
	// does not return it, since re-registering a name succeeds.
	ErrAlreadyRegistered = errors.New("rpcwire: downloader name already registered")

	// ErrNoIdentityAvailable names an empty identity pool; request_user_identity
	// does not return it, since an empty idle set is refilled from the roster
	// and an empty roster yields a zero identity with SUCCESS.
	ErrNoIdentityAvailable = errors.New("rpcwire: no user identity available")

	// ErrIdentityNotOwned is returned by resign_user_identity when the
	// identity is not currently leased to the calling downloader.
	ErrIdentityNotOwned = errors.New("rpcwire: identity not owned by caller")

	// ErrUnknownOperation is returned when a frame names an Operation value
	// outside the fixed set.
	ErrUnknownOperation = errors.New("rpcwire: unknown operation")
)

// AsReply converts err into a failed Reply, preserving its message so a
// caller on the other side of the wire can log it. Only the message is
// carried, so errors.Is against the sentinels above does not match on
// the client side.
func AsReply(err error) Reply {
	return Reply{Status: StatusFailed, Err: err.Error()}
}

// Error adapts a failed Reply back into an error, for use on the client
// side once a Reply has been decoded off the wire.
type Error struct {
	Op  Operation
	Msg string
}

func (e *Error) Error() string { return "rpcwire: " + e.Op.String() + ": " + e.Msg }

// ReplyError returns nil if r succeeded, else an *Error describing the
// failure.
func ReplyError(op Operation, r Reply) error {
	if r.Status == StatusSuccess {
		return nil
	}
	return &Error{Op: op, Msg: r.Err}
}
