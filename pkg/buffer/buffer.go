// Package buffer provides the generic, thread-safe receive buffer that sits
// between network handlers and the simulation's drain.
package buffer

// RetentionPolicy decides what a Receive buffer keeps between drains. It is
// fixed at construction.
type RetentionPolicy int

const (
	// RetainAll keeps every appended item until the next drain.
	RetainAll RetentionPolicy = iota

	// RetainLast keeps only the most recently appended item. The replaced
	// item is counted as a drop.
	RetainLast
)

// String returns a human-readable representation of the retention policy.
func (p RetentionPolicy) String() string {
	switch p {
	case RetainAll:
		return "RetainAll"
	case RetainLast:
		return "RetainLast"
	default:
		return "Unknown"
	}
}

// PolicyFor maps the "persist received messages" setting onto a policy.
func PolicyFor(persist bool) RetentionPolicy {
	if persist {
		return RetainAll
	}
	return RetainLast
}

// DropCallback is called, outside the buffer lock, when RetainLast replaces an item.
type DropCallback[T any] func(item T)
