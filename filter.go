package vcore

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/liliang-cn/vcore/internal/canon"
)

// Filter is a node in the metadata filter tree (spec §4.2). A node is one of:
//
//   - a leaf field match:      Filter{"field": scalar}
//   - an operator bag:         Filter{"field": Filter{"$gt": 1, "$lt": 10}}
//   - a composite:             Filter{"$and": []Filter{...}} / {"$or": [...]}
//   - a computed predicate:    Filter{"$computed": Filter{"field": {"$formula": "...", "$gt": 1}}}
//
// Multiple field keys in one node are implicitly AND-ed together, matching
// the reference semantics for operator-bag nodes.
type Filter map[string]any

const computedFormulaAgeMinutes = "(NOW - created) / 60000"

// Evaluator interprets Filter trees over Record metadata and tracks usage
// statistics keyed by the filter's canonical shape (spec §4.2, §3 "Filter
// Stats Table").
type Evaluator struct {
	mu          sync.Mutex
	trackStats  bool
	usageCounts map[string]int
	fieldCounts map[string]int
}

// NewEvaluator returns an Evaluator. When trackStats is false, Evaluate never
// touches the stats tables (avoids the lock on the hot path when diagnostics
// are disabled).
func NewEvaluator(trackStats bool) *Evaluator {
	return &Evaluator{
		trackStats:  trackStats,
		usageCounts: make(map[string]int),
		fieldCounts: make(map[string]int),
	}
}

// CanonicalKey returns the stable cache key for filter f.
func CanonicalKey(f Filter) string {
	if f == nil {
		return "{}"
	}
	return canon.MustCanonical(f)
}

// Evaluate reports whether record metadata md matches filter f. A nil or
// empty filter matches everything. nowMs is the wall-clock used by
// $computed's age formula.
func (e *Evaluator) Evaluate(f Filter, md Metadata, nowMsVal int64) bool {
	if e.trackStats && len(f) > 0 {
		e.record(f)
	}
	return EvaluateFilter(f, md, nowMsVal)
}

// EvaluateFilter evaluates filter f against md without usage tracking. It is
// the full filter language (composite $and/$or/$computed nodes, operator
// bags, the works), exported so any ScalableIndex implementation can stay
// exactly equivalent to the in-process evaluator instead of hand-rolling a
// partial filter match (spec §9 open question #5).
func EvaluateFilter(f Filter, md Metadata, nowMsVal int64) bool {
	if len(f) == 0 {
		return true
	}
	return evalNode(f, md, nowMsVal)
}

func (e *Evaluator) record(f Filter) {
	key := CanonicalKey(f)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usageCounts[key]++
	for _, field := range fieldsOf(f) {
		e.fieldCounts[field]++
	}
}

// FilterUsage is one row of the "most-used filters" diagnostic view.
type FilterUsage struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TopFilters returns up to 10 most-used canonical filter keys, descending by
// use count, ties broken by key for stable ordering.
func (e *Evaluator) TopFilters() []FilterUsage {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := make([]FilterUsage, 0, len(e.usageCounts))
	for k, c := range e.usageCounts {
		rows = append(rows, FilterUsage{Key: k, Count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if len(rows) > 10 {
		rows = rows[:10]
	}
	return rows
}

// FieldFrequency returns how often each metadata field has appeared in an
// evaluated filter.
func (e *Evaluator) FieldFrequency() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.fieldCounts))
	for k, v := range e.fieldCounts {
		out[k] = v
	}
	return out
}

// AverageComplexity returns the mean predicate-node count across every
// filter shape ever evaluated (each distinct shape counted once, weighted by
// its use count).
func (e *Evaluator) AverageComplexity() float64 {
	e.mu.Lock()
	keys := make([]string, 0, len(e.usageCounts))
	counts := make([]int, 0, len(e.usageCounts))
	for k, c := range e.usageCounts {
		keys = append(keys, k)
		counts = append(counts, c)
	}
	e.mu.Unlock()

	if len(keys) == 0 {
		return 0
	}
	var totalComplexity, totalUses float64
	for i, k := range keys {
		totalComplexity += float64(complexityOf(k)) * float64(counts[i])
		totalUses += float64(counts[i])
	}
	if totalUses == 0 {
		return 0
	}
	return totalComplexity / totalUses
}

// complexityOf is a cheap proxy for predicate-node count: the number of ':'
// JSON-key separators in the canonical form. Good enough for a relative
// "average complexity" diagnostic, not meant to be exact.
func complexityOf(canonicalKey string) int {
	return strings.Count(canonicalKey, ":")
}

// fieldsOf returns the distinct field names referenced anywhere in f
// (excluding $and/$or/$computed themselves, but descending into their
// children).
func fieldsOf(f Filter) []string {
	var fields []string
	collectFields(f, &fields)
	return lo.Uniq(fields)
}

func collectFields(f Filter, out *[]string) {
	for k, v := range f {
		switch k {
		case "$and", "$or":
			children, ok := v.([]Filter)
			if !ok {
				continue
			}
			for _, c := range children {
				collectFields(c, out)
			}
		case "$computed":
			inner, ok := v.(Filter)
			if !ok {
				continue
			}
			for field := range inner {
				*out = append(*out, field)
			}
		default:
			*out = append(*out, k)
		}
	}
}

// evalNode evaluates a single filter node against md. Invalid structure
// (e.g. "$and" not a []Filter) causes that subtree to match nothing, without
// panicking (spec §4.2 "Invalid structure").
func evalNode(f Filter, md Metadata, nowMsVal int64) bool {
	for key, value := range f {
		var ok bool
		switch key {
		case "$and":
			ok = evalAnd(value, md, nowMsVal)
		case "$or":
			ok = evalOr(value, md, nowMsVal)
		case "$computed":
			ok = evalComputed(value, md, nowMsVal)
		default:
			ok = evalField(key, value, md)
		}
		if !ok {
			return false
		}
	}
	return true
}

func evalAnd(value any, md Metadata, nowMsVal int64) bool {
	children, isList := value.([]Filter)
	if !isList {
		return false
	}
	if len(children) == 0 {
		return true
	}
	for _, c := range children {
		if !evalNode(c, md, nowMsVal) {
			return false
		}
	}
	return true
}

func evalOr(value any, md Metadata, nowMsVal int64) bool {
	children, isList := value.([]Filter)
	if !isList {
		return false
	}
	if len(children) == 0 {
		return false
	}
	for _, c := range children {
		if evalNode(c, md, nowMsVal) {
			return true
		}
	}
	return false
}

func evalComputed(value any, md Metadata, nowMsVal int64) bool {
	inner, ok := value.(Filter)
	if !ok {
		return false
	}
	for field, opsVal := range inner {
		ops, ok := opsVal.(Filter)
		if !ok {
			return false
		}
		formula, _ := ops["$formula"].(string)
		if formula != computedFormulaAgeMinutes {
			// Unrecognized formula: silently passes this predicate (spec §4.2,
			// open question §9.1). Not an error, not a match failure.
			continue
		}
		created, hasCreated := md.Timestamp()
		if !hasCreated {
			return false
		}
		ageMinutes := (float64(nowMsVal) - created) / 60000.0
		opsWithoutFormula := make(Filter, len(ops))
		for k, v := range ops {
			if k != "$formula" {
				opsWithoutFormula[k] = v
			}
		}
		if !evalComparisons(opsWithoutFormula, ageMinutes) {
			return false
		}
		_ = field
	}
	return true
}

// evalField evaluates a leaf field match or an operator bag for one field.
func evalField(field string, value any, md Metadata) bool {
	ops, isBag := value.(Filter)
	if !isBag {
		return leafMatch(md[field], value)
	}
	return evalOperatorBag(field, ops, md)
}

func evalOperatorBag(field string, ops Filter, md Metadata) bool {
	actual, exists := md[field]
	for op, want := range ops {
		switch op {
		case "$eq":
			if !leafMatch(actual, want) {
				return false
			}
		case "$ne", "$not":
			if leafMatch(actual, want) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !numericCompare(op, actual, want) {
				return false
			}
		case "$in":
			if !membershipMatch(actual, want, true) {
				return false
			}
		case "$nin":
			if membershipMatch(actual, want, true) {
				return false
			}
		case "$regex":
			if !regexMatch(actual, want) {
				return false
			}
		case "$exists":
			want, _ := want.(bool)
			if exists != want {
				return false
			}
		default:
			// Unknown operator: treat as non-matching rather than panicking.
			return false
		}
	}
	return true
}

// leafMatch implements "metadata[field] === scalar"; for list-valued
// metadata, equality means any element equals (spec §4.2).
func leafMatch(actual, want any) bool {
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if scalarEqual(item, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(actual, want)
}

func scalarEqual(a, b any) bool {
	af, aIsNum := numericOf(a)
	bf, bIsNum := numericOf(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	return a == b
}

func numericOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func numericCompare(op string, actual, want any) bool {
	a, aok := numericOf(actual)
	w, wok := numericOf(want)
	if !aok || !wok {
		return false
	}
	switch op {
	case "$gt":
		return a > w
	case "$gte":
		return a >= w
	case "$lt":
		return a < w
	case "$lte":
		return a <= w
	default:
		return false
	}
}

// membershipMatch reports whether actual intersects the list want. For
// list-valued actual, membership is any-element (spec §4.2 "$in"/"$nin").
func membershipMatch(actual, want any, _ bool) bool {
	wantList, ok := want.([]any)
	if !ok {
		return false
	}
	if list, ok := actual.([]any); ok {
		for _, item := range list {
			if lo.ContainsBy(wantList, func(w any) bool { return scalarEqual(item, w) }) {
				return true
			}
		}
		return false
	}
	return lo.ContainsBy(wantList, func(w any) bool { return scalarEqual(actual, w) })
}

func regexMatch(actual, want any) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	pattern, ok := want.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// evalComparisons applies the numeric comparison operators in ops to the
// precomputed value n (used by $computed).
func evalComparisons(ops Filter, n float64) bool {
	for op, want := range ops {
		w, ok := numericOf(want)
		if !ok {
			return false
		}
		switch op {
		case "$gt":
			if !(n > w) {
				return false
			}
		case "$gte":
			if !(n >= w) {
				return false
			}
		case "$lt":
			if !(n < w) {
				return false
			}
		case "$lte":
			if !(n <= w) {
				return false
			}
		case "$eq":
			if n != w {
				return false
			}
		case "$ne":
			if n == w {
				return false
			}
		}
	}
	return true
}
