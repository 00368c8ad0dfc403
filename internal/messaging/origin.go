package messaging

import "strings"

// Origin tells where a message entry stands relative to the backend.
// It is one of Pending, Confirmed or Failed.
type Origin interface {
	isOrigin()
}

// Pending is an optimistic entry awaiting the backend.
type Pending struct{ TempID string }

// Confirmed is a backend-acknowledged entry.
type Confirmed struct{ ID string }

// Failed is an optimistic entry whose send was rejected. Request is kept so
// a retry resends exactly what was attempted.
type Failed struct {
	TempID  string
	Err     string
	Request SendRequest
}

func (Pending) isOrigin()   {}
func (Confirmed) isOrigin() {}
func (Failed) isOrigin()    {}

const tempPrefix = "tmp-"

// IsTempID reports whether id was minted locally for an unconfirmed message.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

func isPending(m Message, tempID string) bool {
	p, ok := m.Origin.(Pending)
	return ok && p.TempID == tempID
}

// isLocal reports whether the entry exists only on this client.
func isLocal(m Message) bool {
	switch m.Origin.(type) {
	case Pending, Failed:
		return true
	}
	return false
}
