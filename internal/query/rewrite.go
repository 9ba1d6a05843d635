package query

// Rewrite applies optimization rules to a query AST until a fixed point is reached.
// Rules: flatten nested booleans, drop MatchAll from AND and MatchNone from OR,
// short-circuit MatchNone in AND, turn NOT(MatchAll) into MatchNone, unwrap
// single-clause booleans. Rewrite never changes which documents match.
func Rewrite(q Query) Query {
	for {
		rewritten := rewriteOnce(q)
		if queryEqual(rewritten, q) {
			return rewritten
		}
		q = rewritten
	}
}

func rewriteOnce(q Query) Query {
	switch v := q.(type) {
	case *BooleanQuery:
		return rewriteBoolean(v)
	default:
		return q
	}
}

func rewriteBoolean(q *BooleanQuery) Query {
	clauses := make([]BooleanClause, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		rewritten := rewriteOnce(c.Query)

		if inner, ok := rewritten.(*BooleanQuery); ok && canFlatten(c.Occur, q, inner) {
			for _, ic := range inner.Clauses {
				clauses = append(clauses, BooleanClause{Occur: c.Occur, Query: ic.Query})
			}
			continue
		}
		clauses = append(clauses, BooleanClause{Occur: c.Occur, Query: rewritten})
	}

	var must, should, mustNot int
	hadMust, hadShould := false, false
	filtered := make([]BooleanClause, 0, len(clauses))
	for _, c := range clauses {
		switch c.Query.(type) {
		case *MatchAllQuery:
			if c.Occur == BooleanMustNot {
				return &MatchNoneQuery{}
			}
			if c.Occur == BooleanMust && BoostOf(c.Query) == 1 {
				hadMust = true
				continue
			}
		case *MatchNoneQuery:
			switch c.Occur {
			case BooleanMust:
				return &MatchNoneQuery{}
			case BooleanShould:
				hadShould = true
				continue
			case BooleanMustNot:
				continue
			}
		}
		switch c.Occur {
		case BooleanMust:
			must++
		case BooleanShould:
			should++
		case BooleanMustNot:
			mustNot++
		}
		filtered = append(filtered, c)
	}

	// More should matches are required than there are should clauses.
	if q.MinimumShouldMatch > should {
		return &MatchNoneQuery{}
	}
	// Every should clause was MatchNone and nothing else is required.
	if hadShould && should == 0 && must == 0 && !hadMust {
		return &MatchNoneQuery{}
	}
	if len(filtered) == 0 {
		return &MatchAllQuery{Boost: q.Boost}
	}
	// Dropping the last MatchAll must clause would make should clauses
	// mandatory; keep one.
	if hadMust && must == 0 {
		filtered = append([]BooleanClause{{Occur: BooleanMust, Query: &MatchAllQuery{}}}, filtered...)
	} else if len(filtered) == 1 && mustNot == 0 && BoostOf(q) == 1 && q.MinimumShouldMatch <= 1 {
		return filtered[0].Query
	}

	return &BooleanQuery{
		Clauses:            filtered,
		MinimumShouldMatch: q.MinimumShouldMatch,
		Boost:              q.Boost,
	}
}

// canFlatten returns true if an inner boolean can be flattened into the outer clause.
// AND(AND(a,b)) → AND(a,b) and OR(OR(a,b)) → OR(a,b).
func canFlatten(outerOccur BooleanOp, outer, inner *BooleanQuery) bool {
	if outerOccur == BooleanMustNot {
		return false
	}
	if BoostOf(inner) != 1 || inner.MinimumShouldMatch > 1 {
		return false
	}
	if outerOccur == BooleanMust && inner.MinimumShouldMatch > 0 {
		return false
	}
	if outerOccur == BooleanShould && outer.MinimumShouldMatch > 1 {
		return false
	}
	for _, c := range inner.Clauses {
		if c.Occur != outerOccur {
			return false
		}
	}
	return len(inner.Clauses) > 0
}

// queryEqual checks structural equality for fixed-point detection.
func queryEqual(a, b Query) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case *BooleanQuery:
		bv := b.(*BooleanQuery)
		if len(av.Clauses) != len(bv.Clauses) || av.Boost != bv.Boost ||
			av.MinimumShouldMatch != bv.MinimumShouldMatch {
			return false
		}
		for i := range av.Clauses {
			if av.Clauses[i].Occur != bv.Clauses[i].Occur {
				return false
			}
			if !queryEqual(av.Clauses[i].Query, bv.Clauses[i].Query) {
				return false
			}
		}
		return true
	case *MatchAllQuery:
		return av.Boost == b.(*MatchAllQuery).Boost
	case *MatchNoneQuery:
		return true
	}
	// For leaf nodes, pointer equality is sufficient after one pass.
	return a == b
}
