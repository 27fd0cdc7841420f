package settlement

import "fmt"

// AttemptKind tags the result of one settlement path.
type AttemptKind int

const (
	// AttemptOK means the path submitted a transfer; TxRef may still be empty
	// if the upstream omitted it, which the router treats as a failure.
	AttemptOK AttemptKind = iota
	// AttemptUnavailable means the upstream could not be reached or errored.
	AttemptUnavailable
	// AttemptDeclined means the upstream answered but refused the transfer.
	AttemptDeclined
)

func (k AttemptKind) String() string {
	switch k {
	case AttemptOK:
		return "ok"
	case AttemptUnavailable:
		return "unavailable"
	case AttemptDeclined:
		return "declined"
	default:
		return fmt.Sprintf("AttemptKind(%d)", int(k))
	}
}

// Attempt is what a settlement capability reports back to the router.
type Attempt struct {
	Kind  AttemptKind
	TxRef string
	Err   error
}

func OK(txRef string) Attempt {
	return Attempt{Kind: AttemptOK, TxRef: txRef}
}

func Unavailable(err error) Attempt {
	return Attempt{Kind: AttemptUnavailable, Err: err}
}

func Declined(err error) Attempt {
	return Attempt{Kind: AttemptDeclined, Err: err}
}

// Settled reports whether the attempt produced a usable transaction reference.
func (a Attempt) Settled() bool {
	return a.Kind == AttemptOK && a.TxRef != ""
}
