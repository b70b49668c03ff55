package pgvector

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/strata/internal/storage"
)

// Metadata keys marshaled at the top level of the JSONB column, by the SQL
// type they compare as. Everything else lives under the extra map. The sets
// must stay aligned with storage.Filter's recognized keys so this backend
// and the embedded one agree on filter semantics.
var (
	timeKeys   = map[string]bool{"timestamp": true}
	numberKeys = map[string]bool{"importance": true, "merged_count": true}
	boolKeys   = map[string]bool{"archived": true}
	listKeys   = map[string]bool{"tags": true, "related_concepts": true}
	stringKeys = map[string]bool{
		"category": true, "subtype": true, "event_type": true, "user_id": true,
		"refinement": true, "date": true, "concept_name": true, "source": true,
	}
)

var orderedOps = map[storage.Op]string{
	storage.OpGt:  ">",
	storage.OpGte: ">=",
	storage.OpLt:  "<",
	storage.OpLte: "<=",
}

// appendFilterClauses translates a storage.Filter into SQL conditions,
// extending conditions and args in place. Keys are processed in sorted order
// so generated queries are stable. A condition whose value type cannot match
// the key's type compiles to FALSE, mirroring the in-memory filter.
func appendFilterClauses(conditions []string, args []any, filter storage.Filter) ([]string, []any, error) {
	keys := make([]string, 0, len(filter))
	for key := range filter {
		if !isSafeKey(key) {
			return nil, nil, fmt.Errorf("%w: unsafe filter key %q", storage.ErrInvalidInput, key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var err error
	for _, key := range keys {
		conditions, args, err = appendCondition(conditions, args, key, filter[key])
		if err != nil {
			return nil, nil, err
		}
	}
	return conditions, args, nil
}

func appendCondition(conditions []string, args []any, key string, cond storage.Condition) ([]string, []any, error) {
	expr := fmt.Sprintf("metadata->>'%s'", key)

	switch {
	case timeKeys[key]:
		return appendTimeCondition(conditions, args, expr, cond)
	case numberKeys[key]:
		return appendNumberCondition(conditions, args, expr, cond)
	case boolKeys[key]:
		return appendBoolCondition(conditions, args, expr, cond)
	case listKeys[key]:
		return appendListCondition(conditions, args, key, cond)
	case stringKeys[key]:
		return appendStringCondition(conditions, args, expr, cond)
	default:
		return appendExtraCondition(conditions, args, key, cond)
	}
}

func appendTimeCondition(conditions []string, args []any, expr string, cond storage.Condition) ([]string, []any, error) {
	value, ok := cond.Value.(time.Time)
	if !ok {
		return append(conditions, "FALSE"), args, nil
	}
	switch cond.Op {
	case storage.OpEq:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("(%s)::timestamptz = $%d", expr, len(args))), args, nil
	case storage.OpNe:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("(%s)::timestamptz <> $%d", expr, len(args))), args, nil
	case storage.OpGt, storage.OpGte, storage.OpLt, storage.OpLte:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("(%s)::timestamptz %s $%d", expr, orderedOps[cond.Op], len(args))), args, nil
	default:
		return nil, nil, unsupported(cond.Op, "timestamp")
	}
}

func appendNumberCondition(conditions []string, args []any, expr string, cond storage.Condition) ([]string, []any, error) {
	cast := fmt.Sprintf("COALESCE(%s, '0')::float8", expr)

	if cond.Op == storage.OpIn {
		floats, ok := asFloatList(cond.Value)
		if !ok {
			return append(conditions, "FALSE"), args, nil
		}
		args = append(args, pq.Array(floats))
		return append(conditions, fmt.Sprintf("%s = ANY($%d)", cast, len(args))), args, nil
	}

	value, ok := asFloatValue(cond.Value)
	if !ok {
		return append(conditions, "FALSE"), args, nil
	}
	switch cond.Op {
	case storage.OpEq:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s = $%d", cast, len(args))), args, nil
	case storage.OpNe:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s <> $%d", cast, len(args))), args, nil
	case storage.OpGt, storage.OpGte, storage.OpLt, storage.OpLte:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s %s $%d", cast, orderedOps[cond.Op], len(args))), args, nil
	default:
		return nil, nil, unsupported(cond.Op, "numeric")
	}
}

func appendBoolCondition(conditions []string, args []any, expr string, cond storage.Condition) ([]string, []any, error) {
	value, ok := cond.Value.(bool)
	if !ok {
		return append(conditions, "FALSE"), args, nil
	}
	cast := fmt.Sprintf("COALESCE((%s)::boolean, false)", expr)
	switch cond.Op {
	case storage.OpEq:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s = $%d", cast, len(args))), args, nil
	case storage.OpNe:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s <> $%d", cast, len(args))), args, nil
	default:
		return nil, nil, unsupported(cond.Op, "boolean")
	}
}

func appendStringCondition(conditions []string, args []any, expr string, cond storage.Condition) ([]string, []any, error) {
	// Typed string fields are omitted from the JSONB when empty, so compare
	// through COALESCE to keep empty-string equality working.
	cast := fmt.Sprintf("COALESCE(%s, '')", expr)

	if cond.Op == storage.OpIn {
		strs, ok := asStringList(cond.Value)
		if !ok {
			return append(conditions, "FALSE"), args, nil
		}
		args = append(args, pq.Array(strs))
		return append(conditions, fmt.Sprintf("%s = ANY($%d)", cast, len(args))), args, nil
	}

	value, ok := cond.Value.(string)
	if !ok {
		return append(conditions, "FALSE"), args, nil
	}
	switch cond.Op {
	case storage.OpEq:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s = $%d", cast, len(args))), args, nil
	case storage.OpNe:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s <> $%d", cast, len(args))), args, nil
	case storage.OpGt, storage.OpGte, storage.OpLt, storage.OpLte:
		args = append(args, value)
		return append(conditions, fmt.Sprintf("%s %s $%d", cast, orderedOps[cond.Op], len(args))), args, nil
	default:
		return nil, nil, unsupported(cond.Op, "string")
	}
}

// appendListCondition handles tags and related_concepts. Only $in is
// meaningful for list fields: it matches when the stored list intersects the
// candidate list.
func appendListCondition(conditions []string, args []any, key string, cond storage.Condition) ([]string, []any, error) {
	if cond.Op != storage.OpIn {
		return append(conditions, "FALSE"), args, nil
	}
	strs, ok := asStringList(cond.Value)
	if !ok {
		return append(conditions, "FALSE"), args, nil
	}
	args = append(args, pq.Array(strs))
	return append(conditions, fmt.Sprintf("metadata->'%s' ?| $%d", key, len(args))), args, nil
}

// appendExtraCondition handles keys stored under the extra map. Equality uses
// JSONB containment, so any JSON-encodable value works; other operators are
// not supported on extra keys.
func appendExtraCondition(conditions []string, args []any, key string, cond storage.Condition) ([]string, []any, error) {
	switch cond.Op {
	case storage.OpEq, storage.OpNe:
		probe, err := json.Marshal(map[string]any{"extra": map[string]any{key: cond.Value}})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: unencodable filter value for %q", storage.ErrInvalidInput, key)
		}
		args = append(args, string(probe))
		if cond.Op == storage.OpEq {
			return append(conditions, fmt.Sprintf("metadata @> $%d::jsonb", len(args))), args, nil
		}
		// Not-equal must still require the key to exist.
		clause := fmt.Sprintf("(metadata->'extra' ? '%s' AND NOT metadata @> $%d::jsonb)", key, len(args))
		return append(conditions, clause), args, nil
	default:
		return nil, nil, unsupported(cond.Op, "extra key "+key)
	}
}

func unsupported(op storage.Op, kind string) error {
	return fmt.Errorf("%w: operator %s not supported on %s fields", storage.ErrInvalidInput, op, kind)
}

// isSafeKey permits only identifier-like keys, which are interpolated into
// JSONB path expressions.
func isSafeKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

func asFloatValue(v any) (float64, bool) {
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
	}
	return 0, false
}

func asFloatList(v any) ([]float64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := asFloatValue(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func asStringList(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
