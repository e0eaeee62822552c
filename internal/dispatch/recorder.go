package dispatch

import (
	"sync"

	"github.com/g960059/maptime/internal/model"
)

// Recorder keeps every action a loop applied, in order.
type Recorder struct {
	mu      sync.Mutex
	actions []model.Action
}

// NewRecorder attaches a recorder to l.
func NewRecorder(l *Loop) *Recorder {
	r := &Recorder{}
	l.Observe(r.record)
	return r
}

func (r *Recorder) record(a model.Action) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
}

func (r *Recorder) Actions() []model.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Action(nil), r.actions...)
}

func (r *Recorder) Types() []model.ActionType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ActionType, len(r.actions))
	for i, a := range r.actions {
		out[i] = a.Type()
	}
	return out
}

// Count returns how many recorded actions have type t.
func (r *Recorder) Count(t model.ActionType) int {
	n := 0
	for _, got := range r.Types() {
		if got == t {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.actions = nil
	r.mu.Unlock()
}
