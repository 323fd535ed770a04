package core

// StatusOK is the status code the relay uses for success. Any other value
// is a delivery failure whose meaning is defined by the relay.
const StatusOK = 0

// Names of the events delivered when signal bridging is enabled.
const (
	EventReload    = "system::reload"
	EventTerminate = "system::terminate"
)

// Succeeded reports whether status denotes success.
func Succeeded(status int) bool { return status == StatusOK }
