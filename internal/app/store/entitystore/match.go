// internal/app/store/entitystore/match.go
package entitystore

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// matches reports whether doc satisfies every clause in filter. Only the
// subset of the query dialect used by the typed stores is supported.
func matches(doc bson.M, filter Filter) bool {
	for path, want := range filter {
		got, present := lookup(doc, path)
		if !matchClause(got, present, want) {
			return false
		}
	}
	return true
}

func matchClause(got any, present bool, want any) bool {
	ops, isOps := operators(want)
	if !isOps {
		return equals(got, present, want)
	}
	for op, arg := range ops {
		switch op {
		case "$in":
			if !inList(got, present, arg) {
				return false
			}
		case "$nin":
			if inList(got, present, arg) {
				return false
			}
		case "$ne":
			if equals(got, present, arg) {
				return false
			}
		case "$exists":
			wantExists, _ := arg.(bool)
			if present != wantExists {
				return false
			}
		case "$lt", "$lte", "$gt", "$gte":
			if !present {
				return false
			}
			c, ok := compare(got, canon(arg))
			if !ok {
				return false
			}
			switch op {
			case "$lt":
				ok = c < 0
			case "$lte":
				ok = c <= 0
			case "$gt":
				ok = c > 0
			case "$gte":
				ok = c >= 0
			}
			if !ok {
				return false
			}
		default:
			panic(fmt.Sprintf("entitystore: unsupported operator %q", op))
		}
	}
	return true
}

// operators returns want as an operator document when every key starts with '$'.
func operators(want any) (map[string]any, bool) {
	var m map[string]any
	switch w := want.(type) {
	case primitive.M:
		m = w
	case map[string]any:
		m = w
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// equals follows query equality: nil matches a missing or null field, and a
// scalar matches an array field that contains it.
func equals(got any, present bool, want any) bool {
	want = canon(want)
	if want == nil {
		return !present || got == nil
	}
	if !present {
		return false
	}
	if arr, ok := got.(primitive.A); ok {
		if _, wantArr := want.(primitive.A); !wantArr {
			for _, el := range arr {
				if sameValue(el, want) {
					return true
				}
			}
			return false
		}
	}
	return sameValue(got, want)
}

func inList(got any, present bool, list any) bool {
	for _, el := range elements(list) {
		if equals(got, present, el) {
			return true
		}
	}
	return false
}

// elements spreads any slice or array argument into its values.
func elements(list any) []any {
	if a, ok := list.(primitive.A); ok {
		return a
	}
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{list}
	}
	if rv.Kind() == reflect.Array && rv.Type() == reflect.TypeOf(primitive.ObjectID{}) {
		return []any{list}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(normalizeNumber(a), normalizeNumber(b))
}

// normalizeNumber widens numeric BSON values so 1, int64(1), and 1.0 compare equal.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

// compare orders two numbers, two dates, or two strings. The second result
// is false when the values are not comparable.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case primitive.DateTime:
		bv, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		return cmpOrdered(int64(av), int64(bv)), true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	}
	af, aok := normalizeNumber(a).(float64)
	bf, bok := normalizeNumber(b).(float64)
	if !aok || !bok {
		return 0, false
	}
	return cmpOrdered(af, bf), true
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// canon converts a Go value into the form it takes inside a stored document,
// so typed strings, times, and slices compare against decoded values.
func canon(v any) any {
	if v == nil {
		return nil
	}
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return v
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return v
	}
	return d["v"]
}

// lookup resolves a dotted path through nested documents.
func lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case primitive.M:
			v, ok := c[part]
			if !ok {
				return nil, false
			}
			cur = v
		case primitive.D:
			found := false
			for _, e := range c {
				if e.Key == part {
					cur = e.Value
					found = true
					break
				}
			}
			if !found {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

// setPath assigns v at a dotted path, creating intermediate documents.
func setPath(doc bson.M, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		switch next := cur[part].(type) {
		case primitive.M:
			cur = next
		case primitive.D:
			m := primitive.M{}
			for _, e := range next {
				m[e.Key] = e.Value
			}
			cur[part] = m
			cur = m
		default:
			m := primitive.M{}
			cur[part] = m
			cur = m
		}
	}
	cur[parts[len(parts)-1]] = v
}

func applyMutation(doc bson.M, mut Mutation) error {
	for path, v := range mut.Set {
		setPath(doc, path, canon(v))
	}
	for path, v := range mut.Inc {
		delta, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("entitystore: $inc %s: non-integer delta %T", path, v)
		}
		cur, _ := lookup(doc, path)
		base, ok := toInt64(cur)
		if !ok {
			return fmt.Errorf("entitystore: $inc %s: field is %T", path, cur)
		}
		setPath(doc, path, base+delta)
	}
	for path, v := range mut.AddToSet {
		arr, err := arrayAt(doc, path)
		if err != nil {
			return err
		}
		cv := canon(v)
		exists := false
		for _, el := range arr {
			if sameValue(el, cv) {
				exists = true
				break
			}
		}
		if !exists {
			arr = append(arr, cv)
		}
		setPath(doc, path, arr)
	}
	for path, v := range mut.Pull {
		arr, err := arrayAt(doc, path)
		if err != nil {
			return err
		}
		cv := canon(v)
		kept := primitive.A{}
		for _, el := range arr {
			if !sameValue(el, cv) {
				kept = append(kept, el)
			}
		}
		setPath(doc, path, kept)
	}
	return nil
}

func arrayAt(doc bson.M, path string) (primitive.A, error) {
	cur, present := lookup(doc, path)
	if !present || cur == nil {
		return primitive.A{}, nil
	}
	arr, ok := cur.(primitive.A)
	if !ok {
		return nil, fmt.Errorf("entitystore: %s is %T, not an array", path, cur)
	}
	return arr, nil
}
