package flow

import (
	"sync/atomic"

	"github.com/viant/fsmflow/model/types"
)

// pending is a queued event with its (possibly snapshotted) args
type pending struct {
	event types.Eventable
	args  []any
}

type node struct {
	next atomic.Pointer[node]
	item pending
}

// mailbox is an unbounded multi-producer single-consumer FIFO.
//
// push never blocks and may be called from any goroutine. pop and empty must be
// called by one consumer at a time; the flow context guarantees this through
// its active flag and the exclusive section taken by destroy.
type mailbox struct {
	head  atomic.Pointer[node] // last pushed node
	tail  atomic.Pointer[node] // stub whose successor is the next item
	count atomic.Int64
}

func newMailbox() *mailbox {
	stub := &node{}
	ret := &mailbox{}
	ret.head.Store(stub)
	ret.tail.Store(stub)
	return ret
}

func (m *mailbox) push(item pending) {
	n := &node{item: item}
	m.count.Add(1)
	prev := m.head.Swap(n)
	// between Swap and Store the queue looks empty to the consumer; the producer
	// activates the flow only after Store so the item is never stranded
	prev.next.Store(n)
}

func (m *mailbox) pop() (pending, bool) {
	tail := m.tail.Load()
	next := tail.next.Load()
	if next == nil {
		return pending{}, false
	}
	m.tail.Store(next)
	item := next.item
	next.item = pending{}
	m.count.Add(-1)
	return item, true
}

func (m *mailbox) empty() bool {
	return m.tail.Load().next.Load() == nil
}

// drain removes every linked item
func (m *mailbox) drain() []pending {
	var ret []pending
	for {
		item, ok := m.pop()
		if !ok {
			return ret
		}
		ret = append(ret, item)
	}
}

func (m *mailbox) size() int {
	return int(m.count.Load())
}
