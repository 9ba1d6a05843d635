package search

import (
	"fmt"
	"slices"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/query"
)

// Descriptor is a built search request. It is immutable once returned by
// Build and is shared by every fetch of a scan.
type Descriptor struct {
	Condition condition.Condition
	Query     query.Query
	Filter    query.Query
	FilterBy  condition.Condition
	Sort      Sort
	After     *RankMarker
	Limit     int
	Fields    []string
}

// BuildRequest holds the caller's inputs to Build.
type BuildRequest struct {
	Condition condition.Condition
	Filter    condition.Condition // optional post-filter
	Sort      Sort                // nil means DefaultSort
	Cursor    *Cursor
	Limit     int
	Fields    []string
}

// Build validates and compiles a request.
func Build(cc *condition.Compiler, req BuildRequest) (*Descriptor, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, req.Limit)
	}

	sort := slices.Clone(req.Sort)
	if len(sort) == 0 {
		sort = DefaultSort()
	}
	if err := sort.validate(cc.Schema); err != nil {
		return nil, err
	}

	d := &Descriptor{
		Condition: req.Condition,
		FilterBy:  req.Filter,
		Sort:      sort,
		Limit:     req.Limit,
		Fields:    dedupe(req.Fields),
	}

	if req.Cursor != nil {
		if req.Cursor.Sort != sort.Fingerprint() || len(req.Cursor.Marker.Values) != len(sort) {
			return nil, fmt.Errorf("%w: cursor sort %q, request sort %q",
				ErrCursorMismatch, req.Cursor.Sort, sort.Fingerprint())
		}
		after := req.Cursor.Marker
		d.After = &after
	}

	q, err := cc.Compile(req.Condition)
	if err != nil {
		return nil, err
	}
	d.Query = q

	if req.Filter != nil {
		f, err := cc.Compile(req.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		d.Filter = f
	}
	return d, nil
}

// Request returns the page request that resumes after the given marker.
func (d *Descriptor) Request(after *RankMarker, limit int) Request {
	return Request{
		Query:  d.Query,
		Filter: d.Filter,
		Sort:   d.Sort,
		After:  after,
		Limit:  limit,
		Fields: d.Fields,
	}
}

// Cursor returns the cursor that resumes after m under this descriptor's sort.
func (d *Descriptor) Cursor(m RankMarker) Cursor {
	return NewCursor(d.Sort, m)
}

func dedupe(fields []string) []string {
	var out []string
	for _, f := range fields {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
