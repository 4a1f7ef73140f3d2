package loader

import (
	"relayloader/internal/model"
	"relayloader/internal/planner"
)

// ResultSet is the related rows fetched for one parent, narrowed on read to
// the options of the request that asked for them. The fetch may have used a
// wider window and projection shared with other requests.
type ResultSet struct {
	rows []model.Row
	opts planner.QueryOptions
	// base is the start row of the fetched window.
	base    int
	total   int
	counted bool
	// filtered is set when the store already applied opts.Filter.
	filtered bool
}

// NewResultSet wraps rows fetched starting at row base for opts.
func NewResultSet(rows []model.Row, opts planner.QueryOptions, base int) *ResultSet {
	return &ResultSet{rows: rows, opts: opts, base: base}
}

// WithTotal attaches a full count.
func (s *ResultSet) WithTotal(total int) *ResultSet {
	s.total = total
	s.counted = true
	return s
}

// Filtered marks the rows as already matching the request's filter, so
// ToList leaves filtering to the store.
func (s *ResultSet) Filtered() *ResultSet {
	s.filtered = true
	return s
}

// Total returns the full count and whether one was fetched.
func (s *ResultSet) Total() (int, bool) {
	return s.total, s.counted
}

// Len returns the number of rows ToList would return.
func (s *ResultSet) Len() int {
	return len(s.ToList())
}

// ToList filters, orders and windows the rows. Filtering is skipped for
// rows marked Filtered. Rows are copies; when a total
// was fetched each carries it under model.FullCountField.
func (s *ResultSet) ToList() []model.Row {
	out := make([]model.Row, 0, len(s.rows))
	for _, row := range s.rows {
		if !s.filtered && !planner.MatchFilter(row, s.opts.Filter) {
			continue
		}
		out = append(out, row)
	}
	planner.SortRows(out, s.opts.OrderBy)

	start := s.opts.Index - s.base
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		start = len(out)
	}
	end := len(out)
	if s.opts.Limit > 0 && start+s.opts.Limit < end {
		end = start + s.opts.Limit
	}
	out = out[start:end]

	rows := make([]model.Row, len(out))
	for i, row := range out {
		rows[i] = copyRow(row)
		if s.counted {
			rows[i][model.FullCountField] = s.total
		}
	}
	return rows
}

// ToObject returns the first row, or nil.
func (s *ResultSet) ToObject() model.Row {
	rows := s.ToList()
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func copyRow(row model.Row) model.Row {
	c := make(model.Row, len(row)+1)
	for k, v := range row {
		c[k] = v
	}
	return c
}
