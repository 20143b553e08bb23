package reactor

import (
	"strings"
)

// Interest is a bitset of the readiness kinds a handle is watched for.
type Interest uint32

const (
	// InterestAccept indicates a listening channel has a pending connection.
	InterestAccept Interest = 1 << iota
	// InterestConnect indicates a non-blocking connect has completed (or failed).
	InterestConnect
	// InterestRead indicates the channel is readable.
	InterestRead
	// InterestWrite indicates the channel is writable.
	InterestWrite
)

// interestAll is every supported kind.
const interestAll = InterestAccept | InterestConnect | InterestRead | InterestWrite

// dispatchOrder is the fixed per-channel callback order.
var dispatchOrder = [...]Interest{InterestAccept, InterestConnect, InterestWrite, InterestRead}

// Has reports whether every bit of kind is set.
func (x Interest) Has(kind Interest) bool {
	return kind != 0 && x&kind == kind
}

// String returns a human-readable representation, e.g. "read|write".
func (x Interest) String() string {
	if x == 0 {
		return "none"
	}
	var parts []string
	if x&InterestAccept != 0 {
		parts = append(parts, "accept")
	}
	if x&InterestConnect != 0 {
		parts = append(parts, "connect")
	}
	if x&InterestRead != 0 {
		parts = append(parts, "read")
	}
	if x&InterestWrite != 0 {
		parts = append(parts, "write")
	}
	if x&^interestAll != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

// inbound are the kinds signalled by the multiplexer's "in" readiness.
func (x Interest) inbound() Interest { return x & (InterestAccept | InterestRead) }

// outbound are the kinds signalled by the multiplexer's "out" readiness.
func (x Interest) outbound() Interest { return x & (InterestConnect | InterestWrite) }
