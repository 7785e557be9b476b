// Package notify carries change notifications from the tree and the run
// orchestrator to observers such as the API websocket hub.
package notify

import "sync"

// Property names used in change events.
const (
	PropItem          = "item"
	PropChildren      = "children"
	PropState         = "state"
	PropStateCurrent  = "isStateCurrent"
	PropResult        = "result"
	PropExpanded      = "isExpanded"
	PropSelected      = "selected"
	PropRunnerState   = "runnerState"
	PropProgress      = "progress"
	PropStatus        = "statusMessage"
	PropSolution      = "solution"
	PropGroups        = "stateGroups"
	PropAutoCover     = "isAutoCoverEnabled"
	PropSolutionReady = "isSolutionLoaded"
)

// Event describes a single property change. Source is the object whose
// property changed, typically a *tree.Node or the orchestrator itself.
type Event struct {
	Source   any
	Property string
}

// Notifier receives change events. Implementations must not block the caller
// for long: events are raised from the orchestrator's owner loop.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) {
	f(e)
}

type nullNotifier struct{}

func (nullNotifier) Notify(Event) {}

// Null drops every event.
var Null Notifier = nullNotifier{}

// Multi fans events out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many recorded events match source and property. A nil
// source matches any source.
func (r *Recorder) Count(source any, property string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Property == property && (source == nil || e.Source == source) {
			n++
		}
	}
	return n
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
