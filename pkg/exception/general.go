package exception

import "errors"

// Error classes. Component errors wrap one of these so callers can branch on
// the class with errors.Is.
var (
	// ErrConfig marks an invalid or unknown location, account or channel wiring.
	ErrConfig = errors.New("config error")

	// ErrRouting marks a missing writer destination for an account or service.
	ErrRouting = errors.New("routing error")

	// ErrIO marks a page open, read or write failure.
	ErrIO = errors.New("io error")

	// ErrProtocol marks a malformed frame payload or control document.
	ErrProtocol = errors.New("protocol error")

	// ErrNotImplemented is returned by broker capabilities an adapter does not support.
	ErrNotImplemented = errors.New("not implemented")

	// ErrRiskRejected is returned when the quota gate refuses an order.
	ErrRiskRejected = errors.New("risk rejected")
)

