// internal/app/store/entitystore/memory.go
package entitystore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Op names a Memory operation for fault injection.
type Op string

const (
	OpGet        Op = "get"
	OpFind       Op = "find"
	OpCount      Op = "count"
	OpInsert     Op = "insert"
	OpApply      Op = "apply"
	OpDelete     Op = "delete"
	OpDeleteMany Op = "delete_many"
)

// FaultFunc lets tests fail selected operations. A non-nil return aborts the
// operation with that error before any state is touched.
type FaultFunc func(op Op, coll string, id primitive.ObjectID) error

type memDoc struct {
	seq uint64
	doc bson.M
}

// Memory is an in-process Store. Documents are held in their BSON map form
// so that decoding follows the same struct tags as the Mongo backend.
type Memory struct {
	mu      sync.RWMutex
	colls   map[string]map[primitive.ObjectID]*memDoc
	seq     uint64
	indexes map[string][]Index

	faultMu sync.RWMutex
	fault   FaultFunc
}

func NewMemory() *Memory {
	return &Memory{
		colls:   make(map[string]map[primitive.ObjectID]*memDoc),
		indexes: make(map[string][]Index),
	}
}

// SetFault installs (or with nil, clears) a fault injector.
func (m *Memory) SetFault(f FaultFunc) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	m.fault = f
}

func (m *Memory) check(op Op, coll string, id primitive.ObjectID) error {
	m.faultMu.RLock()
	f := m.fault
	m.faultMu.RUnlock()
	if f == nil {
		return nil
	}
	return f(op, coll, id)
}

func (m *Memory) coll(name string) map[primitive.ObjectID]*memDoc {
	c, ok := m.colls[name]
	if !ok {
		c = make(map[primitive.ObjectID]*memDoc)
		m.colls[name] = c
	}
	return c
}

// matching returns the documents in coll that match filter, in insertion order.
// Caller must hold m.mu.
func (m *Memory) matching(coll string, filter Filter) []*memDoc {
	var out []*memDoc
	for _, d := range m.colls[coll] {
		if matches(d.doc, filter) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (m *Memory) Get(ctx context.Context, coll string, id primitive.ObjectID, out any) error {
	if err := m.check(OpGet, coll, id); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	return decode(d.doc, out)
}

func (m *Memory) FindOne(ctx context.Context, coll string, filter Filter, out any) error {
	if err := m.check(OpFind, coll, primitive.NilObjectID); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.matching(coll, filter)
	if len(docs) == 0 {
		return ErrNotFound
	}
	return decode(docs[0].doc, out)
}

func (m *Memory) Find(ctx context.Context, coll string, filter Filter, out any) error {
	if err := m.check(OpFind, coll, primitive.NilObjectID); err != nil {
		return err
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return errors.New("entitystore: Find requires a pointer to a slice")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.matching(coll, filter)

	sl := rv.Elem()
	elemT := sl.Type().Elem()
	res := reflect.MakeSlice(sl.Type(), 0, len(docs))
	for _, d := range docs {
		ptr := reflect.New(elemT)
		if err := decode(d.doc, ptr.Interface()); err != nil {
			return err
		}
		res = reflect.Append(res, ptr.Elem())
	}
	sl.Set(res)
	return nil
}

func (m *Memory) Count(ctx context.Context, coll string, filter Filter) (int64, error) {
	if err := m.check(OpCount, coll, primitive.NilObjectID); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matching(coll, filter))), nil
}

func (m *Memory) IDs(ctx context.Context, coll string, filter Filter) ([]primitive.ObjectID, error) {
	if err := m.check(OpFind, coll, primitive.NilObjectID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.matching(coll, filter)
	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.doc["_id"].(primitive.ObjectID))
	}
	return ids, nil
}

func (m *Memory) Insert(ctx context.Context, coll string, doc any) error {
	d, err := toDoc(doc)
	if err != nil {
		return err
	}
	id, ok := d["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		id = primitive.NewObjectID()
		d["_id"] = id
	}
	if err := m.check(OpInsert, coll, id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(coll)
	if _, exists := c[id]; exists {
		return fmt.Errorf("%w: duplicate _id %s", ErrConflict, id.Hex())
	}
	if err := m.checkUnique(coll, id, d); err != nil {
		return err
	}
	m.seq++
	c[id] = &memDoc{seq: m.seq, doc: d}
	return nil
}

func (m *Memory) Apply(ctx context.Context, coll string, id primitive.ObjectID, cond Filter, mut Mutation) error {
	if mut.empty() {
		return errors.New("entitystore: empty mutation")
	}
	if err := m.check(OpApply, coll, id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	if !matches(cur.doc, cond) {
		return ErrConflict
	}

	// Mutate a copy so a failed mutation leaves the document untouched.
	next, err := toDoc(cur.doc)
	if err != nil {
		return err
	}
	if err := applyMutation(next, mut); err != nil {
		return err
	}
	if err := m.checkUnique(coll, id, next); err != nil {
		return err
	}
	cur.doc = next
	return nil
}

func (m *Memory) Delete(ctx context.Context, coll string, id primitive.ObjectID) error {
	if err := m.check(OpDelete, coll, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.colls[coll]
	if _, ok := c[id]; !ok {
		return ErrNotFound
	}
	delete(c, id)
	return nil
}

func (m *Memory) DeleteMany(ctx context.Context, coll string, filter Filter) (int64, error) {
	if err := m.check(OpDeleteMany, coll, primitive.NilObjectID); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.colls[coll]
	var n int64
	for id, d := range c {
		if matches(d.doc, filter) {
			delete(c, id)
			n++
		}
	}
	return n, nil
}

// EnsureIndexes records index definitions. Only unique indexes change
// behavior: they are enforced on Insert and Apply.
func (m *Memory) EnsureIndexes(ctx context.Context, indexes []Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ix := range indexes {
		existing := m.indexes[ix.Collection]
		replaced := false
		for i := range existing {
			if existing[i].Name == ix.Name {
				existing[i] = ix
				replaced = true
			}
		}
		if !replaced {
			existing = append(existing, ix)
		}
		m.indexes[ix.Collection] = existing
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// checkUnique reports ErrConflict if d would collide with another document
// on any unique index. Caller must hold m.mu.
func (m *Memory) checkUnique(coll string, id primitive.ObjectID, d bson.M) error {
	for _, ix := range m.indexes[coll] {
		if !ix.Unique {
			continue
		}
		key, ok := indexKey(d, ix)
		if !ok {
			continue
		}
		for otherID, other := range m.colls[coll] {
			if otherID == id {
				continue
			}
			otherKey, ok := indexKey(other.doc, ix)
			if ok && reflect.DeepEqual(key, otherKey) {
				return fmt.Errorf("%w: duplicate key on %s.%s", ErrConflict, coll, ix.Name)
			}
		}
	}
	return nil
}

func indexKey(d bson.M, ix Index) ([]any, bool) {
	key := make([]any, 0, len(ix.Fields))
	for _, f := range ix.Fields {
		v, present := lookup(d, f)
		if ix.Sparse && (!present || v == nil) {
			return nil, false
		}
		key = append(key, normalizeNumber(v))
	}
	return key, true
}

func toDoc(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func decode(d bson.M, out any) error {
	raw, err := bson.Marshal(d)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}
