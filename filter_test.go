package vcore

import "testing"

func TestFilterEmptyMatchesAll(t *testing.T) {
	e := NewEvaluator(false)
	if !e.Evaluate(nil, Metadata{"a": 1.0}, 0) {
		t.Error("nil filter should match everything")
	}
	if !e.Evaluate(Filter{}, Metadata{"a": 1.0}, 0) {
		t.Error("empty filter should match everything")
	}
}

func TestFilterLeafMatch(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"category": "news"}
	if !e.Evaluate(f, Metadata{"category": "news"}, 0) {
		t.Error("expected leaf match")
	}
	if e.Evaluate(f, Metadata{"category": "sports"}, 0) {
		t.Error("expected leaf mismatch")
	}
}

func TestFilterLeafMatchAgainstList(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"tag": "red"}
	md := Metadata{"tag": []any{"blue", "red"}}
	if !e.Evaluate(f, md, 0) {
		t.Error("leaf match against list-valued metadata should match if any element equals")
	}
}

func TestFilterAndEmptyMatchesAll(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"$and": []Filter{}}
	if !e.Evaluate(f, Metadata{}, 0) {
		t.Error("empty $and should match everything")
	}
}

func TestFilterOrEmptyMatchesNone(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"$or": []Filter{}}
	if e.Evaluate(f, Metadata{}, 0) {
		t.Error("empty $or should match nothing")
	}
}

func TestFilterAndAllMustMatch(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"$and": []Filter{
		{"a": 1.0},
		{"b": 2.0},
	}}
	if !e.Evaluate(f, Metadata{"a": 1.0, "b": 2.0}, 0) {
		t.Error("expected $and match")
	}
	if e.Evaluate(f, Metadata{"a": 1.0, "b": 3.0}, 0) {
		t.Error("expected $and mismatch")
	}
}

func TestFilterOrAnyMustMatch(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"$or": []Filter{
		{"a": 1.0},
		{"b": 2.0},
	}}
	if !e.Evaluate(f, Metadata{"b": 2.0}, 0) {
		t.Error("expected $or match via second branch")
	}
	if e.Evaluate(f, Metadata{"a": 9.0, "b": 9.0}, 0) {
		t.Error("expected $or mismatch")
	}
}

func TestFilterInOnListIntersection(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"tags": Filter{"$in": []any{"a", "b"}}}
	if !e.Evaluate(f, Metadata{"tags": []any{"x", "b"}}, 0) {
		t.Error("expected $in to match on non-empty intersection")
	}
	if e.Evaluate(f, Metadata{"tags": []any{"x", "y"}}, 0) {
		t.Error("expected $in to fail on empty intersection")
	}
}

func TestFilterGteNumeric(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"score": Filter{"$gte": 5.0}}
	if !e.Evaluate(f, Metadata{"score": 5.0}, 0) {
		t.Error("$gte should match equal value")
	}
	if !e.Evaluate(f, Metadata{"score": 6.0}, 0) {
		t.Error("$gte should match greater value")
	}
	if e.Evaluate(f, Metadata{"score": 4.0}, 0) {
		t.Error("$gte should not match lesser value")
	}
}

func TestFilterRegex(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"name": Filter{"$regex": "^foo"}}
	if !e.Evaluate(f, Metadata{"name": "foobar"}, 0) {
		t.Error("expected regex match")
	}
	if e.Evaluate(f, Metadata{"name": "barfoo"}, 0) {
		t.Error("expected regex mismatch")
	}
	if e.Evaluate(f, Metadata{"name": 123.0}, 0) {
		t.Error("non-string metadata should fail $regex")
	}
}

func TestFilterExists(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"tag": Filter{"$exists": true}}
	if !e.Evaluate(f, Metadata{"tag": "x"}, 0) {
		t.Error("expected $exists true to match present field")
	}
	if e.Evaluate(f, Metadata{}, 0) {
		t.Error("expected $exists true to fail on absent field")
	}
}

func TestFilterNotShorthand(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"status": Filter{"$not": "deleted"}}
	if e.Evaluate(f, Metadata{"status": "deleted"}, 0) {
		t.Error("$not should exclude the given value")
	}
	if !e.Evaluate(f, Metadata{"status": "active"}, 0) {
		t.Error("$not should match any other value")
	}
}

func TestFilterInvalidStructureFailsSubtree(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"$and": "not-a-list"}
	if e.Evaluate(f, Metadata{}, 0) {
		t.Error("invalid $and structure should match nothing")
	}
}

func TestFilterComputedAge(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"$computed": Filter{
		"age": Filter{"$formula": computedFormulaAgeMinutes, "$gte": 10.0},
	}}
	now := int64(1000 * 60 * 20) // 20 minutes in ms
	md := Metadata{FieldTimestamp: float64(1000 * 60 * 5)} // created at 5 min
	if !e.Evaluate(f, md, now) {
		t.Error("expected computed age predicate to match (15 min >= 10)")
	}

	md2 := Metadata{FieldTimestamp: float64(1000 * 60 * 19)} // created at 19 min, age = 1 min
	if e.Evaluate(f, md2, now) {
		t.Error("expected computed age predicate to fail (1 min >= 10)")
	}
}

func TestFilterComputedUnrecognizedFormulaPasses(t *testing.T) {
	e := NewEvaluator(false)
	f := Filter{"$computed": Filter{
		"weird": Filter{"$formula": "something else", "$gte": 10.0},
	}}
	if !e.Evaluate(f, Metadata{}, 0) {
		t.Error("unrecognized $formula should silently pass that predicate")
	}
}

func TestEvaluatorStatsTracking(t *testing.T) {
	e := NewEvaluator(true)
	f := Filter{"category": "news"}
	e.Evaluate(f, Metadata{"category": "news"}, 0)
	e.Evaluate(f, Metadata{"category": "sports"}, 0)

	top := e.TopFilters()
	if len(top) != 1 || top[0].Count != 2 {
		t.Errorf("expected 1 filter shape used twice, got %+v", top)
	}

	freq := e.FieldFrequency()
	if freq["category"] != 2 {
		t.Errorf("expected category field frequency 2, got %d", freq["category"])
	}
}

func TestCanonicalKeyStable(t *testing.T) {
	a := Filter{"x": 1.0, "y": 2.0}
	b := Filter{"y": 2.0, "x": 1.0}
	if CanonicalKey(a) != CanonicalKey(b) {
		t.Error("canonical key should be stable regardless of map construction order")
	}
}
