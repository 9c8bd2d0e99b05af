// Package progress carries per-item progress events and per-item outcomes
// between the batch drivers and their callers.
package progress

import "time"

type Status string

const (
	StatusUpToDate    Status = "up_to_date"
	StatusSyncing     Status = "syncing"
	StatusCalculating Status = "calculating"
	StatusScreening   Status = "screening"
	StatusSuccess     Status = "success"
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusError       Status = "error"
)

// Event is pushed after (and for long items, before) each instrument.
type Event struct {
	Index  int
	Total  int
	Symbol string
	Status Status
	// Detail carries stage-specific context: the bar date reached for sync,
	// the running passed count for screening.
	Detail string
	At     time.Time
}

type Observer interface {
	OnProgress(Event)
}

// Func adapts a plain function to Observer.
type Func func(Event)

func (f Func) OnProgress(e Event) {
	if f != nil {
		f(e)
	}
}

// Nop discards events.
var Nop Observer = Func(nil)

// Emit sends e to o, stamping the time. o may be nil.
func Emit(o Observer, e Event) {
	if o == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	o.OnProgress(e)
}
