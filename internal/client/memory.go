package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Compile-time check that Memory implements Client.
var _ Client = (*Memory)(nil)

// ErrUnknownItem is returned through the handle when an item to finish was
// never started by this client.
var ErrUnknownItem = errors.New("unknown item")

// Call is one recorded request, in arrival order.
type Call struct {
	Method string // StartLaunch, StartItem, FinishItem, FinishLaunch, Log
	ID     string // item id the call created or targeted; empty for launch calls
	Name   string
}

// Item is a started item and, once finished, its finish request.
type Item struct {
	ID       string
	ParentID string // empty for items under the launch root
	Start    StartItemRQ
	Finish   *FinishItemRQ
}

// Log is a recorded log request with its owning item resolved.
type Log struct {
	ItemID string
	LogRQ
}

// Memory is a Client that keeps everything in memory and resolves handles
// immediately with sequential ids. It backs --dry-run and the engine tests.
type Memory struct {
	mu     sync.Mutex
	seq    int
	launch *StartLaunchRQ
	finish *FinishExecutionRQ
	items  []*Item
	byID   map[string]*Item
	calls  []Call
	logs   []Log
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*Item)}
}

func (m *Memory) StartLaunch(_ context.Context, rq StartLaunchRQ) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launch = &rq
	m.calls = append(m.calls, Call{Method: "StartLaunch", Name: rq.Name})
	return Resolved("launch")
}

func (m *Memory) StartItem(ctx context.Context, parent *Handle, rq StartItemRQ) *Handle {
	var parentID string
	if parent != nil {
		id, err := parent.Wait(ctx)
		if err != nil {
			return Failed(fmt.Errorf("parent of %q: %w", rq.Name, err))
		}
		parentID = id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	it := &Item{ID: fmt.Sprintf("item-%d", m.seq), ParentID: parentID, Start: rq}
	m.items = append(m.items, it)
	m.byID[it.ID] = it
	m.calls = append(m.calls, Call{Method: "StartItem", ID: it.ID, Name: rq.Name})
	return Resolved(it.ID)
}

func (m *Memory) FinishItem(ctx context.Context, item *Handle, rq FinishItemRQ) *Handle {
	id, err := item.Wait(ctx)
	if err != nil {
		return Failed(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.byID[id]
	if !ok {
		return Failed(fmt.Errorf("%w: %s", ErrUnknownItem, id))
	}
	it.Finish = &rq
	m.calls = append(m.calls, Call{Method: "FinishItem", ID: id, Name: it.Start.Name})
	return Resolved(id)
}

func (m *Memory) FinishLaunch(_ context.Context, rq FinishExecutionRQ) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finish = &rq
	m.calls = append(m.calls, Call{Method: "FinishLaunch"})
	return Resolved("launch")
}

func (m *Memory) Log(ctx context.Context, rq LogRQ) {
	var itemID string
	if rq.Item != nil {
		id, err := rq.Item.Wait(ctx)
		if err != nil {
			return
		}
		itemID = id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, Log{ItemID: itemID, LogRQ: rq})
	m.calls = append(m.calls, Call{Method: "Log", ID: itemID})
}

// Launch returns the start and finish requests of the launch, if made.
func (m *Memory) Launch() (*StartLaunchRQ, *FinishExecutionRQ) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launch, m.finish
}

// Items returns copies of all items in start order.
func (m *Memory) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = *it
	}
	return out
}

// Item returns the item with id.
func (m *Memory) Item(id string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.byID[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Children returns the items started under parentID, in start order.
func (m *Memory) Children(parentID string) []Item {
	var out []Item
	for _, it := range m.Items() {
		if it.ParentID == parentID {
			out = append(out, it)
		}
	}
	return out
}

// ItemsOfType returns the items of type t in start order.
func (m *Memory) ItemsOfType(t ItemType) []Item {
	var out []Item
	for _, it := range m.Items() {
		if it.Start.Type == t {
			out = append(out, it)
		}
	}
	return out
}

func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsOf returns the recorded calls of one method.
func (m *Memory) CallsOf(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) Logs() []Log {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Log(nil), m.logs...)
}
