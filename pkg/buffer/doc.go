// # Receive buffer
//
// Receive decouples HTTP handler goroutines from the simulation thread. A
// handler appends and returns immediately; the simulation later takes
// everything in one DrainAndClear call and parses it without holding the
// lock.
//
//	buf, err := buffer.NewReceive[message.Raw](buffer.RetainAll,
//		buffer.WithMetrics[message.Raw](registry, "webhook"),
//	)
//
//	// network side
//	msg := message.NewRaw(0, string(body))
//	buf.AppendStamped(msg, (*message.Raw).SetSeq)
//
//	// simulation side
//	for _, msg := range buf.DrainAndClear() {
//		...
//	}
//
// # Retention
//
//   - RetainAll: every message since the previous drain is kept
//   - RetainLast: only the newest message is kept, replaced items count as drops
//
// Statistics are always collected. Prometheus metrics are optional via
// WithMetrics.
package buffer
