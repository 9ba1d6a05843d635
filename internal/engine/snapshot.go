package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"GoRowSearch/internal/analysis"
	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/query"
	"GoRowSearch/internal/scoring"
	"GoRowSearch/internal/search"
)

var (
	ErrSnapshotClosed = errors.New("snapshot closed")
)

// Snapshot is an immutable point-in-time view of an Index. Doc IDs are
// assigned in row key order. A Snapshot is safe for concurrent searches.
type Snapshot struct {
	generation uint64
	scorer     scoring.BM25
	maxTerms   int
	logger     *slog.Logger

	keys     []string
	versions []uint64
	all      *roaring.Bitmap
	fields   map[string]*fieldIndex

	closed atomic.Bool
}

// fieldIndex holds everything one schema field contributes to a snapshot.
type fieldIndex struct {
	def index.FieldDef

	// text and keyword
	postings map[string]*postingList
	terms    []string // sorted dictionary
	docTerms [][]string
	lengths  []uint32
	stats    scoring.FieldStats

	numbers [][]float64
	points  [][]geo.LatLng
	present *roaring.Bitmap
}

type postingList struct {
	docs  *roaring.Bitmap
	freqs map[uint32]uint32
}

var _ search.Searcher = (*Snapshot)(nil)

// build indexes docs, which must be sorted by key.
func (ix *Index) build(generation uint64, docs []*document) *Snapshot {
	s := &Snapshot{
		generation: generation,
		scorer:     ix.opts.Scorer,
		maxTerms:   ix.opts.MaxTermsExpanded,
		logger:     ix.logger.With("generation", generation),
		keys:       make([]string, len(docs)),
		versions:   make([]uint64, len(docs)),
		all:        roaring.New(),
		fields:     make(map[string]*fieldIndex),
	}
	if len(docs) > 0 {
		s.all.AddRange(0, uint64(len(docs)))
	}

	for _, f := range ix.schema.Fields {
		if _, ok := ix.schema.Field(f.Name); !ok {
			continue
		}
		fi := &fieldIndex{def: f, present: roaring.New()}
		var analyzer analysis.Analyzer
		switch f.Type {
		case index.FieldTypeText, index.FieldTypeKeyword:
			a, err := ix.opts.Analyzers.ForField(ix.schema, f)
			if err != nil {
				ix.logger.Warn("field skipped", "field", f.Name, "error", err)
				continue
			}
			analyzer = a
			fi.postings = make(map[string]*postingList)
			fi.docTerms = make([][]string, len(docs))
			fi.lengths = make([]uint32, len(docs))
		case index.FieldTypeNumeric:
			fi.numbers = make([][]float64, len(docs))
		case index.FieldTypeGeoPoint, index.FieldTypeGeoShape:
			fi.points = make([][]geo.LatLng, len(docs))
		}
		s.fields[f.Name] = fi

		for i, d := range docs {
			v, ok := d.fields[f.Name]
			if !ok || v == nil {
				continue
			}
			fi.add(uint32(i), v, analyzer)
		}
		fi.finish()
	}

	for i, d := range docs {
		s.keys[i] = d.key
		s.versions[i] = d.version
	}
	return s
}

func (fi *fieldIndex) add(doc uint32, v any, a analysis.Analyzer) {
	switch fi.def.Type {
	case index.FieldTypeText, index.FieldTypeKeyword:
		terms := analysis.FieldTerms(a, fi.def.Name, v)
		if len(terms) == 0 {
			return
		}
		for _, t := range terms {
			p, ok := fi.postings[t]
			if !ok {
				p = &postingList{docs: roaring.New(), freqs: make(map[uint32]uint32)}
				fi.postings[t] = p
			}
			p.docs.Add(doc)
			p.freqs[doc]++
		}
		fi.docTerms[doc] = terms
		fi.lengths[doc] = uint32(len(terms))
		fi.stats.DocCount++
		fi.stats.TotalTerms += int64(len(terms))
	case index.FieldTypeNumeric:
		nums, err := index.NumericValues(v)
		if err != nil || len(nums) == 0 {
			return
		}
		fi.numbers[doc] = nums
	case index.FieldTypeGeoPoint, index.FieldTypeGeoShape:
		points, err := geo.ParsePoints(v)
		if err != nil || len(points) == 0 {
			return
		}
		fi.points[doc] = points
	default:
		return
	}
	fi.present.Add(doc)
}

func (fi *fieldIndex) finish() {
	if fi.postings == nil {
		return
	}
	fi.terms = make([]string, 0, len(fi.postings))
	for t, p := range fi.postings {
		fi.terms = append(fi.terms, t)
		p.docs.RunOptimize()
	}
	slices.Sort(fi.terms)
}

// Generation returns the refresh generation the snapshot was built at.
func (s *Snapshot) Generation() uint64 { return s.generation }

// DocCount returns the number of documents in the snapshot.
func (s *Snapshot) DocCount() int { return len(s.keys) }

// Version returns the version key was indexed at, or false if the snapshot
// does not contain key.
func (s *Snapshot) Version(key string) (uint64, bool) {
	i, ok := slices.BinarySearch(s.keys, key)
	if !ok {
		return 0, false
	}
	return s.versions[i], true
}

// Search implements search.Searcher.
func (s *Snapshot) Search(ctx context.Context, req search.Request) ([]search.RankedHit, error) {
	if s.closed.Load() {
		return nil, ErrSnapshotClosed
	}
	if req.Limit <= 0 {
		return nil, search.ErrInvalidLimit
	}
	if req.Query == nil {
		return nil, fmt.Errorf("search: nil query")
	}
	sort := req.Sort
	if len(sort) == 0 {
		sort = search.DefaultSort()
	}
	if req.After != nil && len(req.After.Values) != len(sort) {
		return nil, fmt.Errorf("%w: marker has %d values, sort has %d", search.ErrCursorMismatch, len(req.After.Values), len(sort))
	}

	ec := newExecContext(ctx, s.maxTerms)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := s.plan(ec, req.Query)
	if err != nil {
		return nil, err
	}
	matched := root.docs()
	if req.Filter != nil {
		filter, err := s.plan(ec, req.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		matched = roaring.And(matched, filter.docs())
	}

	needScore := sort.NeedsScore()
	collector := NewCollector(req.Limit, sort, req.After)
	it := matched.Iterator()
	for it.HasNext() {
		if err := ec.check(); err != nil {
			return nil, err
		}
		doc := it.Next()
		var score float32
		if needScore {
			score = root.score(doc)
		}
		collector.Collect(search.RankedHit{
			Key:     s.keys[doc],
			DocID:   doc,
			Version: s.versions[doc],
			Score:   score,
			Marker:  s.marker(sort, doc, score),
		})
	}

	hits := collector.Results()
	s.logger.Debug("snapshot searched",
		"query", query.String(req.Query),
		"matched", matched.GetCardinality(),
		"returned", len(hits),
		"terms_expanded", ec.termsExpanded,
	)
	return hits, nil
}

// Close implements search.Searcher.
func (s *Snapshot) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (s *Snapshot) Closed() bool { return s.closed.Load() }

// marker computes the sort values of doc. Multi-valued fields sort by their
// smallest value ascending and their largest value descending.
func (s *Snapshot) marker(sort search.Sort, doc uint32, score float32) search.RankMarker {
	m := search.RankMarker{Values: make([]search.SortValue, len(sort)), Key: s.keys[doc]}
	for i, f := range sort {
		m.Values[i] = s.sortValue(f, doc, score)
	}
	return m
}

func (s *Snapshot) sortValue(f search.SortField, doc uint32, score float32) search.SortValue {
	if f.IsScore() {
		return search.Number(float64(score))
	}
	fi, ok := s.fields[f.Field]
	if !ok {
		return search.Missing()
	}
	switch {
	case f.GeoOrigin != nil && fi.points != nil:
		points := fi.points[doc]
		if len(points) == 0 {
			return search.Missing()
		}
		best := math.Inf(1)
		if f.Reverse {
			best = math.Inf(-1)
		}
		for _, p := range points {
			d := geo.DistanceBetween(*f.GeoOrigin, p).Meters()
			if f.Reverse {
				best = max(best, d)
			} else {
				best = min(best, d)
			}
		}
		return search.Number(best)
	case fi.numbers != nil:
		nums := fi.numbers[doc]
		if len(nums) == 0 {
			return search.Missing()
		}
		best := nums[0]
		for _, n := range nums[1:] {
			if f.Reverse {
				best = max(best, n)
			} else {
				best = min(best, n)
			}
		}
		return search.Number(best)
	case fi.docTerms != nil:
		terms := fi.docTerms[doc]
		if len(terms) == 0 {
			return search.Missing()
		}
		best := terms[0]
		for _, t := range terms[1:] {
			if f.Reverse {
				best = max(best, t)
			} else {
				best = min(best, t)
			}
		}
		return search.Text(best)
	}
	return search.Missing()
}
