package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TemporaryIDPrefix marks record ids assigned by an execution context before
// the commit interceptor hands out durable ones.
const TemporaryIDPrefix = "tmp:"

// TemporaryID returns the n-th temporary record id.
func TemporaryID(n int64) string {
	return TemporaryIDPrefix + strconv.FormatInt(n, 10)
}

// IsTemporaryID reports whether id was assigned by an execution context.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryIDPrefix)
}

// Record is one instance of a resource type.
type Record struct {
	ID         string `json:"id"`
	Resource   string `json:"resource"`
	Key        string `json:"key,omitempty"` // canonical JSON of the uniqueness-key attributes
	Attributes Object `json:"attributes"`
	Seq        int64  `json:"seq,omitempty"` // store-assigned, zero until committed
}

func (r Record) toObject() Object {
	obj := Object{
		"id":         String(r.ID),
		"resource":   String(r.Resource),
		"attributes": r.Attributes,
	}
	if r.Attributes == nil {
		obj["attributes"] = Object{}
	}
	if r.Key != "" {
		obj["key"] = String(r.Key)
	}
	return obj
}

// BatchUpdate sets Values on every record of Resource whose attributes match Filter.
type BatchUpdate struct {
	Resource string `json:"resource"`
	Filter   Object `json:"filter"`
	Values   Object `json:"values"`
}

// ChangeSet is everything one commit intends to write.
type ChangeSet struct {
	Inserted []Record    `json:"inserted,omitempty"`
	Updated  []Record    `json:"updated,omitempty"`
	Deleted  []Record    `json:"deleted,omitempty"`
	Batch    *BatchUpdate `json:"batch,omitempty"`
}

// Empty reports whether the change set carries no work.
func (cs ChangeSet) Empty() bool {
	return len(cs.Inserted) == 0 && len(cs.Updated) == 0 && len(cs.Deleted) == 0 && cs.Batch == nil
}

// Len returns the number of record-level changes. A batch update counts as one.
func (cs ChangeSet) Len() int {
	n := len(cs.Inserted) + len(cs.Updated) + len(cs.Deleted)
	if cs.Batch != nil {
		n++
	}
	return n
}

// Resources returns the distinct resource names touched, in first-seen order.
func (cs ChangeSet) Resources() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, group := range [][]Record{cs.Inserted, cs.Updated, cs.Deleted} {
		for _, r := range group {
			add(r.Resource)
		}
	}
	if cs.Batch != nil {
		add(cs.Batch.Resource)
	}
	return out
}

// Filter returns the subset of the change set that touches the given resources.
func (cs ChangeSet) Filter(keep func(resource string) bool) ChangeSet {
	pick := func(in []Record) []Record {
		var out []Record
		for _, r := range in {
			if keep(r.Resource) {
				out = append(out, r)
			}
		}
		return out
	}
	out := ChangeSet{
		Inserted: pick(cs.Inserted),
		Updated:  pick(cs.Updated),
		Deleted:  pick(cs.Deleted),
	}
	if cs.Batch != nil && keep(cs.Batch.Resource) {
		b := *cs.Batch
		out.Batch = &b
	}
	return out
}

func recordsToArray(rs []Record) Array {
	arr := make(Array, len(rs))
	for i, r := range rs {
		arr[i] = r.toObject()
	}
	return arr
}

// MarshalChangeSet serializes a change set to canonical JSON for the WAL.
func MarshalChangeSet(cs ChangeSet) ([]byte, error) {
	obj := Object{}
	if len(cs.Inserted) > 0 {
		obj["inserted"] = recordsToArray(cs.Inserted)
	}
	if len(cs.Updated) > 0 {
		obj["updated"] = recordsToArray(cs.Updated)
	}
	if len(cs.Deleted) > 0 {
		obj["deleted"] = recordsToArray(cs.Deleted)
	}
	if cs.Batch != nil {
		filter, values := cs.Batch.Filter, cs.Batch.Values
		if filter == nil {
			filter = Object{}
		}
		if values == nil {
			values = Object{}
		}
		obj["batch"] = Object{
			"resource": String(cs.Batch.Resource),
			"filter":   filter,
			"values":   values,
		}
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal change set: %w", err)
	}
	return data, nil
}

// UnmarshalChangeSet parses a WAL payload back into a change set.
func UnmarshalChangeSet(data []byte) (ChangeSet, error) {
	var cs ChangeSet
	if err := json.Unmarshal(data, &cs); err != nil {
		return ChangeSet{}, fmt.Errorf("unmarshal change set: %w", err)
	}
	return cs, nil
}

// Transaction is one logged commit, owned by the WAL until it is purged.
type Transaction struct {
	ID      string    `json:"id"`
	Seq     int64     `json:"seq"`
	Digest  string    `json:"digest"`
	Changes ChangeSet `json:"changes"`
}

// TransactionRecord is the persisted form of a Transaction as journals store it.
type TransactionRecord struct {
	ID      string
	Seq     int64
	Digest  string
	Payload []byte
}

// Decode expands the persisted record into a Transaction.
func (tr TransactionRecord) Decode() (Transaction, error) {
	cs, err := UnmarshalChangeSet(tr.Payload)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", tr.ID, err)
	}
	return Transaction{ID: tr.ID, Seq: tr.Seq, Digest: tr.Digest, Changes: cs}, nil
}

// KeyOf computes the uniqueness key of attrs for the given key attributes.
// Returns "" when key is empty or any key attribute is missing.
func KeyOf(key []string, attrs Object) string {
	if len(key) == 0 {
		return ""
	}
	arr := make(Array, len(key))
	for i, name := range key {
		v, ok := attrs[name]
		if !ok {
			return ""
		}
		arr[i] = v
	}
	data, err := MarshalCanonical(arr)
	if err != nil {
		return ""
	}
	return string(data)
}
