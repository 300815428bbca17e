package reqrs

import "time"

// Hooks are lightweight callbacks for high-signal engine events.
// Implementations MUST be cheap and non-blocking; wrap slow ones with hooks/async.
type Hooks interface {
	// An effect or command issued its request. op is "<slice>/<op>".
	RequestStarted(op string)

	// The request of op settled. err is nil on success.
	RequestSettled(op string, err error, took time.Duration)

	// An effect started while another effect of the same slice was in flight.
	// Both share one loading envelope, so the first to settle clears IsLoading
	// for both.
	OverlappingEffect(slice, op string, inFlight int)

	// A subscription handler failed and aborted the rest of its dispatch chain.
	HandlerFailed(action, subscription string, err error)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) RequestStarted(string)                        {}
func (NopHooks) RequestSettled(string, error, time.Duration)  {}
func (NopHooks) OverlappingEffect(string, string, int)        {}
func (NopHooks) HandlerFailed(string, string, error)          {}
