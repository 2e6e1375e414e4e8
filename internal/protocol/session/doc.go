// Package session owns the per-connection state a ProtocolContext needs
// beyond the FSM: timing configuration, reconnect backoff, and the
// sequence -> pending-response table used to correlate a COMMAND to its
// eventual RESPONSE or ERROR.
package session
