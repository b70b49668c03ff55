package storage

import (
	"time"

	"github.com/scrypster/strata/pkg/types"
)

// Op is a filter comparison operator.
type Op string

// Filter comparison operators.
const (
	OpEq  Op = "$eq"  // Equal
	OpNe  Op = "$ne"  // Not equal
	OpGt  Op = "$gt"  // Greater than (numeric or lexicographic)
	OpGte Op = "$gte" // Greater than or equal
	OpLt  Op = "$lt"  // Less than
	OpLte Op = "$lte" // Less than or equal
	OpIn  Op = "$in"  // Value in list; for list fields, intersection non-empty
)

// Condition is a single comparison applied to one metadata key.
type Condition struct {
	Op    Op
	Value any
}

// Filter maps metadata keys to conditions. All conditions must match
// (conjunction). Recognized keys: timestamp, importance, category, subtype,
// event_type, user_id, refinement, date, concept_name, tags,
// related_concepts, source, merged_count, archived. Unrecognized keys are
// looked up in the record's Extra map.
type Filter map[string]Condition

// Eq builds an equality condition.
func Eq(v any) Condition { return Condition{Op: OpEq, Value: v} }

// Ne builds an inequality condition.
func Ne(v any) Condition { return Condition{Op: OpNe, Value: v} }

// Gt builds a greater-than condition.
func Gt(v any) Condition { return Condition{Op: OpGt, Value: v} }

// Gte builds a greater-or-equal condition.
func Gte(v any) Condition { return Condition{Op: OpGte, Value: v} }

// Lt builds a less-than condition.
func Lt(v any) Condition { return Condition{Op: OpLt, Value: v} }

// Lte builds a less-or-equal condition.
func Lte(v any) Condition { return Condition{Op: OpLte, Value: v} }

// In builds a membership condition.
func In(values ...any) Condition { return Condition{Op: OpIn, Value: values} }

// InStrings builds a membership condition from a string slice.
func InStrings(values []string) Condition {
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}
	return Condition{Op: OpIn, Value: anyValues}
}

// Matches reports whether the record satisfies every condition in the filter.
// A nil or empty filter matches everything.
func (f Filter) Matches(rec *types.MemoryRecord) bool {
	if len(f) == 0 {
		return true
	}
	for key, cond := range f {
		value, ok := metadataValue(rec, key)
		if !ok {
			return false
		}
		if !cond.matches(value) {
			return false
		}
	}
	return true
}

// EqualityOnly reports whether every condition in the filter is an $eq on a
// string value. Such filters can be pushed down into backends that support
// only exact-match metadata clauses.
func (f Filter) EqualityOnly() bool {
	for _, cond := range f {
		if cond.Op != OpEq {
			return false
		}
		if _, ok := cond.Value.(string); !ok {
			return false
		}
	}
	return true
}

// metadataValue resolves a filter key against the record's typed metadata,
// falling back to the Extra map.
func metadataValue(rec *types.MemoryRecord, key string) (any, bool) {
	m := &rec.Metadata
	switch key {
	case "timestamp":
		return m.Timestamp, true
	case "importance":
		return m.Importance, true
	case "category":
		return m.Category, true
	case "subtype":
		return m.Subtype, true
	case "event_type":
		return m.EventType, true
	case "user_id":
		return m.UserID, true
	case "refinement":
		return m.Refinement, true
	case "date":
		return m.Date, true
	case "concept_name":
		return m.ConceptName, true
	case "related_concepts":
		return m.RelatedConcepts, true
	case "tags":
		return m.Tags, true
	case "source":
		return m.Source, true
	case "merged_count":
		return m.MergedCount, true
	case "archived":
		return m.Archived, true
	default:
		v, ok := m.Extra[key]
		return v, ok
	}
}

func (c Condition) matches(field any) bool {
	switch c.Op {
	case OpEq:
		return compareEq(field, c.Value)
	case OpNe:
		return !compareEq(field, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return compareOrdered(field, c.Value, c.Op)
	case OpIn:
		return compareIn(field, c.Value)
	default:
		return false
	}
}

func compareEq(field, want any) bool {
	if fa, okA := asFloat(field); okA {
		if fb, okB := asFloat(want); okB {
			return fa == fb
		}
		return false
	}
	switch fv := field.(type) {
	case string:
		wv, ok := want.(string)
		return ok && fv == wv
	case bool:
		wv, ok := want.(bool)
		return ok && fv == wv
	}
	return false
}

func compareOrdered(field, want any, op Op) bool {
	if fa, okA := asFloat(field); okA {
		fb, okB := asFloat(want)
		if !okB {
			return false
		}
		switch op {
		case OpGt:
			return fa > fb
		case OpGte:
			return fa >= fb
		case OpLt:
			return fa < fb
		case OpLte:
			return fa <= fb
		}
		return false
	}
	fs, okA := field.(string)
	ws, okB := want.(string)
	if !okA || !okB {
		return false
	}
	switch op {
	case OpGt:
		return fs > ws
	case OpGte:
		return fs >= ws
	case OpLt:
		return fs < ws
	case OpLte:
		return fs <= ws
	}
	return false
}

// compareIn handles both scalar-in-list and list-field-intersects-list.
func compareIn(field, want any) bool {
	list := toAnySlice(want)
	if list == nil {
		return false
	}
	if members := toAnySlice(field); members != nil {
		for _, member := range members {
			for _, candidate := range list {
				if compareEq(member, candidate) {
					return true
				}
			}
		}
		return false
	}
	for _, candidate := range list {
		if compareEq(field, candidate) {
			return true
		}
	}
	return false
}

func toAnySlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	}
	return nil
}

// asFloat coerces numeric values (and time.Time, as unix seconds) to float64
// for ordered comparisons.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case time.Time:
		return float64(n.UnixNano()) / float64(time.Second), true
	}
	return 0, false
}
