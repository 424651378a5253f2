package replica

import (
	"encoding/json"
	"fmt"
)

// ID identifies one inserted character across all replicas.
type ID struct {
	Client string `json:"c,omitempty"`
	Clock  uint64 `json:"k,omitempty"`
}

// IsZero reports whether id is the document head.
func (id ID) IsZero() bool {
	return id.Client == "" && id.Clock == 0
}

// Less orders ids by clock, then client.
func (id ID) Less(other ID) bool {
	if id.Clock != other.Clock {
		return id.Clock < other.Clock
	}
	return id.Client < other.Client
}

func (id ID) String() string {
	return fmt.Sprintf("%s@%d", id.Client, id.Clock)
}

type OpKind string

const (
	OpInsert OpKind = "ins"
	OpDelete OpKind = "del"
)

// Op is one entry of an update. Inserts carry ID, Origin and Char; deletes
// carry Target.
//
// On the wire an insert may carry several runes in Char: the i-th rune has
// clock ID.Clock+i and follows the rune before it. Decoded ops always hold
// exactly one rune.
type Op struct {
	Kind   OpKind `json:"t"`
	ID     ID     `json:"id,omitzero"`
	Origin ID     `json:"o,omitzero"`
	Char   string `json:"v,omitempty"`
	Target ID     `json:"x,omitzero"`
}

type updateEnvelope struct {
	Ops []Op `json:"ops"`
}

func encodeUpdate(ops []Op) []byte {
	data, err := json.Marshal(updateEnvelope{Ops: compact(ops)})
	if err != nil {
		// only plain strings and integers are marshalled
		panic(fmt.Sprintf("replica: encode update: %v", err))
	}
	return data
}

func decodeUpdate(data []byte) ([]Op, error) {
	var env updateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}

	ops := make([]Op, 0, len(env.Ops))
	for i, op := range env.Ops {
		switch op.Kind {
		case OpInsert:
			if op.ID.IsZero() || op.Char == "" {
				return nil, fmt.Errorf("%w: insert op %d", ErrMalformedUpdate, i)
			}
			origin, clock := op.Origin, op.ID.Clock
			for _, r := range op.Char {
				id := ID{Client: op.ID.Client, Clock: clock}
				ops = append(ops, Op{Kind: OpInsert, ID: id, Origin: origin, Char: string(r)})
				origin = id
				clock++
			}
		case OpDelete:
			if op.Target.IsZero() {
				return nil, fmt.Errorf("%w: delete op %d", ErrMalformedUpdate, i)
			}
			ops = append(ops, op)
		default:
			// newer op kinds are skipped
		}
	}
	return ops, nil
}

// compact merges inserts typed one after another by the same client into a
// single op carrying the whole run.
func compact(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	var tail ID
	for _, op := range ops {
		if n := len(out); n > 0 && op.Kind == OpInsert && out[n-1].Kind == OpInsert &&
			op.Origin == tail && op.ID.Client == tail.Client && op.ID.Clock == tail.Clock+1 {
			out[n-1].Char += op.Char
			tail = op.ID
			continue
		}
		out = append(out, op)
		tail = op.ID
	}
	return out
}
