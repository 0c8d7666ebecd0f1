package domain

// ChangeOp is the kind of filesystem change observed.
type ChangeOp string

// Available change operations.
const (
	ChangeCreated  ChangeOp = "created"
	ChangeModified ChangeOp = "modified"
	ChangeRemoved  ChangeOp = "removed"
)

// ChangeOrigin records which mechanism noticed a change.
type ChangeOrigin string

// Available change origins.
const (
	// OriginEvent is a native filesystem notification.
	OriginEvent ChangeOrigin = "event"

	// OriginPoll is the periodic full-directory scan.
	OriginPoll ChangeOrigin = "poll"
)

// ChangeEvent is delivered to watch callbacks.
type ChangeEvent struct {
	Path   string
	Op     ChangeOp
	Origin ChangeOrigin
}
