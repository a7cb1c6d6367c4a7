package nbkey

import (
	"slices"

	"github.com/rs/zerolog"
)

// Action is invoked for a dispatched key. A returned error aborts the
// current Drain and is handed to its caller.
type Action func(k Key) error

// Do adapts a function that does not care which key was pressed.
func Do(f func()) Action {
	return func(Key) error {
		f()
		return nil
	}
}

// DoKey adapts a function that receives the pressed key.
func DoKey(f func(Key)) Action {
	return func(k Key) error {
		f(k)
		return nil
	}
}

// Keymap maps keys to actions fired in slice order. KeyDefault and KeyAll
// may be used as keys.
type Keymap map[Key][]Action

// Mode is the dispatch state of a Dispatcher.
type Mode uint8

const (
	ModeNormal      Mode = iota // keys go through the keymap
	ModePassthrough             // keys go to the passthrough handler only
)

func (m Mode) String() string {
	if m == ModePassthrough {
		return "passthrough"
	}
	return "normal"
}

type binding struct {
	name   string // empty for anonymous bindings
	action Action
}

// Dispatcher drains a KeyQueue and fires the actions bound to each key.
//
// A Dispatcher is confined to the goroutine that calls Drain. Actions run
// on that goroutine and may rebind keys or switch modes while running.
type Dispatcher struct {
	q           *KeyQueue
	keymap      map[Key][]binding
	mode        Mode
	passthrough Action
	log         zerolog.Logger

	namedBindings map[string]*namedBinding
	bindingOrder  []string // preserve registration order for Bindings()
}

// NewDispatcher creates a dispatcher for q, seeded with keymap.
func NewDispatcher(q *KeyQueue, keymap Keymap) *Dispatcher {
	d := &Dispatcher{
		q:             q,
		keymap:        make(map[Key][]binding),
		log:           zerolog.Nop(),
		namedBindings: make(map[string]*namedBinding),
	}
	for k, actions := range keymap {
		for _, a := range actions {
			d.Register(k, a)
		}
	}
	return d
}

// Logger sets the logger used for dispatch tracing.
func (d *Dispatcher) Logger(l zerolog.Logger) *Dispatcher {
	d.log = l
	return d
}

// Register appends a to the actions bound to k.
func (d *Dispatcher) Register(k Key, a Action) {
	d.keymap[k] = append(d.keymap[k], binding{action: a})
}

// Replace binds a as the only action for k.
func (d *Dispatcher) Replace(k Key, a Action) {
	d.Unregister(k)
	d.Register(k, a)
}

// Unregister removes and returns every action bound to k, or nil if k
// has no bindings.
func (d *Dispatcher) Unregister(k Key) []Action {
	bs, ok := d.keymap[k]
	if !ok {
		return nil
	}
	delete(d.keymap, k)

	actions := make([]Action, len(bs))
	for i, b := range bs {
		actions[i] = b.action
		if nb, ok := d.namedBindings[b.name]; ok && b.name != "" {
			nb.bound = false
		}
	}
	return actions
}

// Bound reports whether k has at least one action.
func (d *Dispatcher) Bound(k Key) bool {
	return len(d.keymap[k]) > 0
}

// Mode returns the current dispatch mode.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// EnterPassthrough routes every following key to h alone until
// ExitPassthrough is called. It returns false, keeping the current
// handler, if passthrough is already active.
func (d *Dispatcher) EnterPassthrough(h Action) bool {
	if d.mode == ModePassthrough || h == nil {
		return false
	}
	d.mode = ModePassthrough
	d.passthrough = h
	d.log.Debug().Msg("passthrough entered")
	return true
}

// ExitPassthrough resumes keymap dispatch. It returns false if passthrough
// was not active.
func (d *Dispatcher) ExitPassthrough() bool {
	if d.mode != ModePassthrough {
		return false
	}
	d.mode = ModeNormal
	d.passthrough = nil
	d.log.Debug().Msg("passthrough exited")
	return true
}

// Drain dispatches every key queued right now and returns without waiting
// for more. open is false once the input has ended, which callers should
// treat as a request to stop. An action error stops draining; keys not yet
// popped stay queued for the next call.
func (d *Dispatcher) Drain() (open bool, err error) {
	for {
		k, ok := d.q.TryPop()
		if !ok {
			return !d.q.Closed(), nil
		}
		if err := d.Dispatch(k); err != nil {
			return true, err
		}
	}
}

// Dispatch fires the actions for a single key as Drain would.
func (d *Dispatcher) Dispatch(k Key) error {
	if d.mode == ModePassthrough {
		d.log.Debug().Stringer("key", k).Msg("dispatch passthrough")
		return d.passthrough(k)
	}

	bs, ok := d.keymap[k]
	if !ok || len(bs) == 0 {
		bs = d.keymap[KeyDefault]
	}
	d.log.Debug().Stringer("key", k).Int("actions", len(bs)).Msg("dispatch")
	if err := fire(bs, k); err != nil {
		return err
	}
	return fire(d.keymap[KeyAll], k)
}

func fire(bs []binding, k Key) error {
	// an action may rebind keys; the list in effect when the key arrived wins
	for _, b := range slices.Clone(bs) {
		if err := b.action(k); err != nil {
			return err
		}
	}
	return nil
}
