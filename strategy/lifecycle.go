package strategy

import "sync"

// assignAction implements the lifecycle transition table over one strategy's
// (previous, next) snapshot pair. It returns the snapshot to keep tracking,
// or nil when the strategy should not enter tracking at all.
//
//	previous  next      active(next)  action
//	nil       present   true          NEW    (next kept)
//	nil       present   false         —      (never tracked)
//	present   nil       —             DELETED (previous retained)
//	active    inactive  false         STOP   (next kept)
//	inactive  active    true          START  (next kept)
//	same      same      —             CONTINUE (previous retained verbatim)
//
// The CONTINUE rule is deliberate: operator edits to a steady-state strategy
// stay invisible until the active flag is toggled.
func assignAction(previous, next *Snapshot) *Snapshot {
	switch {
	case previous == nil && next == nil:
		return nil
	case previous == nil:
		if !next.Active {
			return nil
		}
		next.Action = ActionNew
		return next
	case next == nil:
		previous.Action = ActionDeleted
		return previous
	case previous.Active && !next.Active:
		next.Action = ActionStop
		return next
	case !previous.Active && next.Active:
		next.Action = ActionStart
		return next
	default:
		previous.Action = ActionContinue
		return previous
	}
}

// Reconcile diffs a freshly-read snapshot list against the previously
// accepted list and returns the new authoritative list with actions
// assigned. Strategies present before but absent now are emitted once as
// DELETED; entries already tagged DELETED last cycle drop out silently.
func Reconcile(previous, next []*Snapshot) []*Snapshot {
	prevByID := make(map[uint8]*Snapshot, len(previous))
	for _, p := range previous {
		prevByID[p.StrategyID] = p
	}
	nextIDs := make(map[uint8]bool, len(next))

	var result []*Snapshot
	for _, n := range next {
		nextIDs[n.StrategyID] = true
		if s := assignAction(prevByID[n.StrategyID], n); s != nil {
			result = append(result, s)
		}
	}
	for _, p := range previous {
		if p.Action == ActionDeleted || nextIDs[p.StrategyID] {
			continue
		}
		if s := assignAction(p, nil); s != nil {
			result = append(result, s)
		}
	}
	return result
}

// Tracker owns the authoritative strategy list across refresh cycles.
type Tracker struct {
	mu   sync.RWMutex
	list []*Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Apply reconciles the fresh read against the tracked list, replaces the
// tracked list wholesale and returns it.
func (t *Tracker) Apply(next []*Snapshot) []*Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = Reconcile(t.list, next)
	return t.list
}

// Get returns the tracked snapshot for a strategy id, or nil.
func (t *Tracker) Get(id uint8) *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.list {
		if s.StrategyID == id {
			return s
		}
	}
	return nil
}

// List returns a copy of the tracked list.
func (t *Tracker) List() []*Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Snapshot, len(t.list))
	copy(out, t.list)
	return out
}

// Reset forgets all tracked strategies, so the next read tags every active
// row NEW again.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.list = nil
	t.mu.Unlock()
}
