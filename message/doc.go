// Package message defines the unit that flows from the HTTP receiver through
// the receive buffer into a drain: a raw request body stamped with an
// identifier, its arrival sequence number and time.
package message
