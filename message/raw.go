package message

import (
	"time"

	"github.com/google/uuid"
)

// Raw is one request body exactly as it arrived. The buffer stamps Seq on
// append; after that it is immutable and owned by the buffer until drained.
type Raw struct {
	ID         uuid.UUID `json:"id"`
	Seq        uint64    `json:"seq"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// Option customizes a Raw message at construction.
type Option func(*Raw)

// WithTime overrides the arrival time (tests, replays).
func WithTime(t time.Time) Option {
	return func(r *Raw) { r.ReceivedAt = t }
}

// WithRemoteAddr records the sender's address.
func WithRemoteAddr(addr string) Option {
	return func(r *Raw) { r.RemoteAddr = addr }
}

// WithID sets a fixed identifier instead of a random one.
func WithID(id uuid.UUID) Option {
	return func(r *Raw) { r.ID = id }
}

// NewRaw creates a message for payload with the given arrival sequence.
func NewRaw(seq uint64, payload string, opts ...Option) Raw {
	r := Raw{
		ID:         uuid.New(),
		Seq:        seq,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Size returns the payload length in bytes.
func (r Raw) Size() int {
	return len(r.Payload)
}

// SetSeq records the arrival sequence number assigned by the receive buffer.
func (r *Raw) SetSeq(seq uint64) {
	r.Seq = seq
}
