// Package replica is the replicated text document shared by the peers of a
// session.
//
// The document is a replicated growable array: every character carries a
// unique Lamport id and a reference to the character it was typed after, so
// concurrent inserts and deletes from any number of peers converge to the
// same text regardless of delivery order or duplication.
package replica

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

var (
	ErrDestroyed       = errors.New("replica: document destroyed")
	ErrMalformedUpdate = errors.New("replica: malformed update")
)

type item struct {
	id      ID
	origin  ID
	char    rune
	deleted bool
}

// Doc is a single-writer replica. It is not safe for concurrent use; the peer
// runs every call on its event loop.
type Doc struct {
	client string
	clock  uint64

	items   []*item
	byID    map[ID]*item
	visible int
	pending []Op

	// slot of the most recently inserted item; deletes leave it valid
	lastID  ID
	lastPos int

	updates observers[[]byte]
	changes observers[struct{}]

	destroyed bool
}

// New creates an empty document with a random client identity.
func New() *Doc {
	return NewWithClient(uuid.NewString())
}

// NewWithClient creates an empty document for a fixed client id. Two live
// documents must never share a client id.
func NewWithClient(client string) *Doc {
	return &Doc{
		client: client,
		byID:   make(map[ID]*item),
	}
}

// ClientID returns the identity stamped on locally created characters.
func (d *Doc) ClientID() string {
	return d.client
}

// String returns the visible text.
func (d *Doc) String() string {
	out := make([]rune, 0, d.visible)
	for _, it := range d.items {
		if !it.deleted {
			out = append(out, it.char)
		}
	}
	return string(out)
}

// Len returns the visible length in runes.
func (d *Doc) Len() int {
	return d.visible
}

// Insert inserts text before the rune at index. Index is clamped to the text.
func (d *Doc) Insert(index int, text string) error {
	if d.destroyed {
		return ErrDestroyed
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	index = clamp(index, 0, d.visible)
	origin := ID{}
	slot := 0
	if index > 0 {
		p := d.itemPos(index - 1)
		origin = d.items[p].id
		slot = p + 1
	}

	// local clocks are above every integrated clock, so no concurrent sibling
	// sorts ahead of the run and it lands right after its origin
	ops := make([]Op, 0, len(runes))
	run := make([]*item, 0, len(runes))
	for _, r := range runes {
		d.clock++
		op := Op{
			Kind:   OpInsert,
			ID:     ID{Client: d.client, Clock: d.clock},
			Origin: origin,
			Char:   string(r),
		}
		ops = append(ops, op)
		run = append(run, &item{id: op.ID, origin: origin, char: r})
		origin = op.ID
	}
	d.splice(slot, run)

	d.commit(ops)
	return nil
}

// Delete removes length runes starting at index. The range is clamped.
func (d *Doc) Delete(index, length int) error {
	if d.destroyed {
		return ErrDestroyed
	}
	index = clamp(index, 0, d.visible)
	length = clamp(length, 0, d.visible-index)
	if length == 0 {
		return nil
	}

	targets := make([]*item, 0, length)
	seen := 0
	for _, it := range d.items {
		if it.deleted {
			continue
		}
		if seen >= index && seen < index+length {
			targets = append(targets, it)
		}
		seen++
	}

	ops := make([]Op, 0, len(targets))
	for _, it := range targets {
		it.deleted = true
		d.visible--
		ops = append(ops, Op{Kind: OpDelete, Target: it.id})
	}

	d.commit(ops)
	return nil
}

// ApplyUpdate integrates an update produced by any replica, full state or
// incremental. Ops already known are skipped, so applying the same update
// twice is a no-op. Ops whose dependencies have not arrived yet are kept and
// retried on later updates.
func (d *Doc) ApplyUpdate(update []byte) error {
	if d.destroyed {
		return ErrDestroyed
	}
	ops, err := decodeUpdate(update)
	if err != nil {
		return err
	}

	queue := append(d.pending, ops...)
	d.pending = nil

	var applied []Op
	for progress := true; progress && len(queue) > 0; {
		progress = false
		var waiting []Op
		for i := 0; i < len(queue); {
			op := queue[i]
			i++
			ok, ready := d.integrate(op)
			if !ready {
				waiting = append(waiting, op)
				continue
			}
			if !ok {
				continue
			}
			progress = true
			applied = append(applied, op)
			if op.Kind == OpInsert {
				n := d.extend(queue[i:])
				applied = append(applied, queue[i:i+n]...)
				i += n
			}
		}
		queue = waiting
	}
	d.pending = queue

	d.commit(applied)
	return nil
}

// EncodeStateAsUpdate returns every op this replica knows, in an order that
// can be applied to an empty document. It returns nil for a document that has
// never seen an op.
func (d *Doc) EncodeStateAsUpdate() []byte {
	if len(d.items) == 0 && len(d.pending) == 0 {
		return nil
	}

	ops := make([]Op, 0, len(d.items)*2+len(d.pending))
	for _, it := range d.items {
		ops = append(ops, Op{Kind: OpInsert, ID: it.id, Origin: it.origin, Char: string(it.char)})
	}
	for _, it := range d.items {
		if it.deleted {
			ops = append(ops, Op{Kind: OpDelete, Target: it.id})
		}
	}
	ops = append(ops, d.pending...)

	return encodeUpdate(ops)
}

// OnUpdate registers fn to receive the incremental update of every
// transaction that changed the document, local or remote.
func (d *Doc) OnUpdate(fn func(update []byte)) (cancel func()) {
	return d.updates.add(fn)
}

// OnChange registers fn to run whenever the visible text changes.
func (d *Doc) OnChange(fn func()) (cancel func()) {
	return d.changes.add(func(struct{}) { fn() })
}

// Destroy detaches every observer. Later mutations fail with ErrDestroyed.
func (d *Doc) Destroy() {
	d.destroyed = true
	d.updates.clear()
	d.changes.clear()
}

// Destroyed reports whether Destroy was called.
func (d *Doc) Destroyed() bool {
	return d.destroyed
}

func (d *Doc) commit(ops []Op) {
	if len(ops) == 0 {
		return
	}
	// every integrated op moves the visible text
	d.changes.emit(struct{}{})
	d.updates.emit(encodeUpdate(ops))
}

// integrate reports whether op changed the document and whether its
// dependencies were present.
func (d *Doc) integrate(op Op) (applied, ready bool) {
	switch op.Kind {
	case OpInsert:
		if _, ok := d.byID[op.ID]; ok {
			return false, true
		}
		if !op.Origin.IsZero() {
			if _, ok := d.byID[op.Origin]; !ok {
				return false, false
			}
		}
		r := []rune(op.Char)
		d.integrateInsert(op, r[0])
		if op.ID.Clock > d.clock {
			d.clock = op.ID.Clock
		}
		return true, true
	case OpDelete:
		it, ok := d.byID[op.Target]
		if !ok {
			return false, false
		}
		if it.deleted {
			return false, true
		}
		it.deleted = true
		d.visible--
		return true, true
	default:
		return false, true
	}
}

func (d *Doc) integrateInsert(op Op, char rune) {
	pos := 0
	switch {
	case op.Origin.IsZero():
	case op.Origin == d.lastID:
		pos = d.lastPos + 1
	default:
		pos = d.position(op.Origin) + 1
	}
	// concurrent siblings with a greater id, and everything typed after them,
	// stay to the left
	for pos < len(d.items) && op.ID.Less(d.items[pos].id) {
		pos++
	}
	d.splice(pos, []*item{{id: op.ID, origin: op.Origin, char: char}})
}

// extend integrates the inserts at the head of ops that were typed one after
// another right behind the item just inserted, with a single splice. Each of
// them has a greater id than the last, and the item that stopped the first
// one's sibling scan is smaller than all of them, so they all land in a row.
// It returns how many ops it took.
func (d *Doc) extend(ops []Op) int {
	prev := d.lastID
	run := make([]*item, 0, len(ops))
	for _, op := range ops {
		if op.Kind != OpInsert || op.Origin != prev || !prev.Less(op.ID) {
			break
		}
		if _, ok := d.byID[op.ID]; ok {
			break
		}
		r := []rune(op.Char)
		run = append(run, &item{id: op.ID, origin: op.Origin, char: r[0]})
		prev = op.ID
	}
	if len(run) == 0 {
		return 0
	}
	d.splice(d.lastPos+1, run)
	if prev.Clock > d.clock {
		d.clock = prev.Clock
	}
	return len(run)
}

func (d *Doc) splice(pos int, run []*item) {
	d.items = slices.Insert(d.items, pos, run...)
	for _, it := range run {
		d.byID[it.id] = it
	}
	d.visible += len(run)
	d.lastID = run[len(run)-1].id
	d.lastPos = pos + len(run) - 1
}

func (d *Doc) position(id ID) int {
	for i, it := range d.items {
		if it.id == id {
			return i
		}
	}
	panic(fmt.Sprintf("replica: unknown id %v", id))
}

// itemPos maps a visible index to a slot in d.items.
func (d *Doc) itemPos(visibleIndex int) int {
	seen := 0
	for i, it := range d.items {
		if it.deleted {
			continue
		}
		if seen == visibleIndex {
			return i
		}
		seen++
	}
	panic(fmt.Sprintf("replica: visible index %d out of range", visibleIndex))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
