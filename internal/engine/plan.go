package engine

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"GoRowSearch/internal/automaton"
	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/query"
	"GoRowSearch/internal/scoring"
)

// node is an evaluated query: the set of matching documents plus a scorer.
// score returns 0 for documents outside docs.
type node interface {
	docs() *roaring.Bitmap
	score(doc uint32) float32
}

// constNode gives every matching document the same score.
type constNode struct {
	set   *roaring.Bitmap
	boost float32
}

func (n *constNode) docs() *roaring.Bitmap { return n.set }

func (n *constNode) score(doc uint32) float32 {
	if !n.set.Contains(doc) {
		return 0
	}
	return n.boost
}

// termNode scores a single posting list with BM25.
type termNode struct {
	postings *postingList
	lengths  []uint32
	stats    scoring.FieldStats
	scorer   scoring.BM25
	boost    float32
}

func (n *termNode) docs() *roaring.Bitmap { return n.postings.docs }

func (n *termNode) score(doc uint32) float32 {
	tf := n.postings.freqs[doc]
	if tf == 0 {
		return 0
	}
	df := int64(n.postings.docs.GetCardinality())
	return n.boost * n.scorer.Score(tf, n.lengths[doc], df, n.stats)
}

// maxNode matches any child and scores the best one.
type maxNode struct {
	set      *roaring.Bitmap
	children []node
	boost    float32
}

func (n *maxNode) docs() *roaring.Bitmap { return n.set }

func (n *maxNode) score(doc uint32) float32 {
	var best float32
	for _, c := range n.children {
		best = max(best, c.score(doc))
	}
	return n.boost * best
}

// boolNode sums the scores of its must and should children.
type boolNode struct {
	set     *roaring.Bitmap
	scoring []node
	boost   float32
}

func (n *boolNode) docs() *roaring.Bitmap { return n.set }

func (n *boolNode) score(doc uint32) float32 {
	if !n.set.Contains(doc) {
		return 0
	}
	var sum float32
	for _, c := range n.scoring {
		sum += c.score(doc)
	}
	return n.boost * sum
}

func (s *Snapshot) empty() node { return &constNode{set: roaring.New()} }

// plan evaluates q against the snapshot.
func (s *Snapshot) plan(ec *execContext, q query.Query) (node, error) {
	if err := ec.ctx.Err(); err != nil {
		return nil, err
	}
	boost := query.BoostOf(q)

	switch v := q.(type) {
	case *query.MatchAllQuery:
		return &constNode{set: s.all, boost: boost}, nil
	case *query.MatchNoneQuery:
		return s.empty(), nil
	case *query.BooleanQuery:
		return s.planBoolean(ec, v)
	case *query.TermQuery:
		fi, ok := s.fields[v.Field]
		if !ok || fi.postings == nil {
			return s.empty(), nil
		}
		return s.termNode(fi, v.Term, boost), nil
	case *query.WildcardQuery:
		fi, ok := s.fields[v.Field]
		if !ok || fi.postings == nil {
			return s.empty(), nil
		}
		m, err := automaton.NewWildcard(v.Pattern)
		if err != nil {
			return nil, err
		}
		terms := automaton.Expand(m, fi.terms)
		if err := ec.expanded(len(terms)); err != nil {
			return nil, err
		}
		return &constNode{set: fi.union(terms), boost: boost}, nil
	case *query.FuzzyQuery:
		return s.planFuzzy(ec, v)
	case *query.TermRangeQuery:
		fi, ok := s.fields[v.Field]
		if !ok || fi.postings == nil {
			return s.empty(), nil
		}
		start := 0
		if v.Min != nil {
			start = sort.SearchStrings(fi.terms, *v.Min)
		}
		var terms []string
		for _, t := range fi.terms[start:] {
			if v.Max != nil && (t > *v.Max || (t == *v.Max && !v.IncludeMax)) {
				break
			}
			if condition.InRange(t, v.Min, v.Max, v.IncludeMin, v.IncludeMax) {
				terms = append(terms, t)
			}
		}
		return &constNode{set: fi.union(terms), boost: boost}, nil
	case *query.NumericRangeQuery:
		fi, ok := s.fields[v.Field]
		if !ok || fi.numbers == nil {
			return s.empty(), nil
		}
		return s.scanField(ec, fi, boost, func(doc uint32) bool {
			for _, n := range fi.numbers[doc] {
				if condition.InRange(n, v.Min, v.Max, v.IncludeMin, v.IncludeMax) {
					return true
				}
			}
			return false
		})
	case *query.GeoQuery:
		fi, ok := s.fields[v.Field]
		if !ok || fi.points == nil {
			return s.empty(), nil
		}
		return s.scanField(ec, fi, boost, func(doc uint32) bool {
			for _, p := range fi.points[doc] {
				if v.Shape.ContainsPoint(p) {
					return true
				}
			}
			return false
		})
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func (s *Snapshot) termNode(fi *fieldIndex, term string, boost float32) node {
	p, ok := fi.postings[term]
	if !ok {
		return s.empty()
	}
	return &termNode{postings: p, lengths: fi.lengths, stats: fi.stats, scorer: s.scorer, boost: boost}
}

// scanField tests every document holding fi against match.
func (s *Snapshot) scanField(ec *execContext, fi *fieldIndex, boost float32, match func(uint32) bool) (node, error) {
	set := roaring.New()
	it := fi.present.Iterator()
	for it.HasNext() {
		if err := ec.check(); err != nil {
			return nil, err
		}
		doc := it.Next()
		if match(doc) {
			set.Add(doc)
		}
	}
	return &constNode{set: set, boost: boost}, nil
}

// planFuzzy expands the term and keeps the closest MaxExpansions matches.
func (s *Snapshot) planFuzzy(ec *execContext, q *query.FuzzyQuery) (node, error) {
	fi, ok := s.fields[q.Field]
	if !ok || fi.postings == nil {
		return s.empty(), nil
	}
	lev, err := automaton.NewLevenshtein(q.Term, q.MaxEdits, q.PrefixLength, q.Transpositions)
	if err != nil {
		return nil, err
	}
	terms := automaton.Expand(lev, fi.terms)
	if q.MaxExpansions > 0 && len(terms) > q.MaxExpansions {
		type candidate struct {
			term string
			dist int
		}
		cands := make([]candidate, len(terms))
		for i, t := range terms {
			d, _ := lev.Distance(t)
			cands[i] = candidate{term: t, dist: d}
		}
		slices.SortStableFunc(cands, func(a, b candidate) int { return cmp.Compare(a.dist, b.dist) })
		terms = terms[:0]
		for _, c := range cands[:q.MaxExpansions] {
			terms = append(terms, c.term)
		}
	}
	if err := ec.expanded(len(terms)); err != nil {
		return nil, err
	}

	children := make([]node, 0, len(terms))
	for _, t := range terms {
		children = append(children, s.termNode(fi, t, 1))
	}
	return &maxNode{set: fi.union(terms), children: children, boost: query.BoostOf(q)}, nil
}

func (s *Snapshot) planBoolean(ec *execContext, b *query.BooleanQuery) (node, error) {
	var must, should, not []node
	for _, c := range b.Clauses {
		n, err := s.plan(ec, c.Query)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case query.BooleanMust:
			must = append(must, n)
		case query.BooleanShould:
			should = append(should, n)
		case query.BooleanMustNot:
			not = append(not, n)
		}
	}

	var set *roaring.Bitmap
	if len(must) == 0 {
		set = s.all.Clone()
	} else {
		sets := make([]*roaring.Bitmap, len(must))
		for i, n := range must {
			sets[i] = n.docs()
		}
		set = roaring.FastAnd(sets...)
	}

	switch required := condition.RequiredShould(b, len(must), len(should)); {
	case required > len(should):
		set.Clear()
	case required == 1:
		sets := make([]*roaring.Bitmap, len(should))
		for i, n := range should {
			sets[i] = n.docs()
		}
		set.And(roaring.FastOr(sets...))
	case required > 1:
		counts := make(map[uint32]int)
		for _, n := range should {
			it := n.docs().Iterator()
			for it.HasNext() {
				counts[it.Next()]++
			}
		}
		enough := roaring.New()
		for doc, c := range counts {
			if c >= required {
				enough.Add(doc)
			}
		}
		set.And(enough)
	}

	for _, n := range not {
		set.AndNot(n.docs())
	}
	return &boolNode{set: set, scoring: append(must, should...), boost: query.BoostOf(b)}, nil
}

// union returns the documents containing any of terms.
func (fi *fieldIndex) union(terms []string) *roaring.Bitmap {
	sets := make([]*roaring.Bitmap, 0, len(terms))
	for _, t := range terms {
		if p, ok := fi.postings[t]; ok {
			sets = append(sets, p.docs)
		}
	}
	if len(sets) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(sets...)
}
