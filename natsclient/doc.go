// Package natsclient manages the NATS connection used to mirror received
// payloads onto a subject.
//
// Connect retries with exponential backoff (pkg/retry) and afterwards the
// nats.go client reconnects on its own; the client tracks the connection
// state through nats.go's handlers and reports it on the
// webapisync_nats_connected gauge when WithMetrics is given. Publish is
// fire-and-forget and fails fast with ErrNotConnected while the connection
// is down. Close drains pending publishes within the drain timeout.
package natsclient
