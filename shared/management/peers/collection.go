package peers

import (
	"sort"
	"strings"
	"time"
)

// DefaultPageLimit is used when a page request carries no positive limit
const DefaultPageLimit = 10

// Order is the direction of a sort
type Order int

const (
	// OrderDefault picks the natural direction of the sort key
	OrderDefault Order = iota
	OrderAsc
	OrderDesc
)

// Filter holds the optional criteria of FilterBy. Nil or empty fields do not restrict.
type Filter struct {
	Enabled       *bool
	NameContains  string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Online        *bool
	MinTransferRx *uint64
	MinTransferTx *uint64
}

// PageRequest selects a 1-based page
type PageRequest struct {
	Page  int
	Limit int
}

// Page is one slice of a collection plus the numbers needed to navigate it
type Page struct {
	Items      []Record
	Total      int
	Page       int
	Limit      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Statistics aggregates a collection
type Statistics struct {
	Total    int
	Enabled  int
	Disabled int
	Online   int
	Offline  int
	TotalRx  uint64
	TotalTx  uint64
}

// Collection is a query over a snapshot. Every operation returns a new Collection and leaves the
// receiver and the snapshot untouched. The reference time for the online state is captured once.
type Collection struct {
	records []Record
	now     time.Time
}

// CollectionOption configures a Collection
type CollectionOption func(*Collection)

// WithNow sets the reference time used for online checks
func WithNow(now time.Time) CollectionOption {
	return func(c *Collection) {
		c.now = now
	}
}

// NewCollection starts a query over all records of the snapshot
func NewCollection(s *Snapshot, opts ...CollectionOption) *Collection {
	c := &Collection{
		records: s.Records(),
		now:     time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collection) derive(records []Record) *Collection {
	return &Collection{records: records, now: c.now}
}

// Now returns the reference time of the collection
func (c *Collection) Now() time.Time {
	return c.now
}

// Len returns the number of records in the collection
func (c *Collection) Len() int {
	return len(c.records)
}

// Snapshot materializes the collection as a new snapshot
func (c *Collection) Snapshot() *Snapshot {
	return fromUnique(c.Records())
}

// Records returns a copy of the records in collection order
func (c *Collection) Records() []Record {
	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.clone()
	}
	return out
}

// FilterBy keeps the records matching every set criterion of f, preserving order
func (c *Collection) FilterBy(f Filter) *Collection {
	needle := strings.ToLower(f.NameContains)
	out := make([]Record, 0, len(c.records))
	for _, r := range c.records {
		if f.Enabled != nil && r.Enabled != *f.Enabled {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.Name), needle) {
			continue
		}
		if f.CreatedAfter != nil && !r.CreatedAt.After(*f.CreatedAfter) {
			continue
		}
		if f.CreatedBefore != nil && !r.CreatedAt.Before(*f.CreatedBefore) {
			continue
		}
		if f.Online != nil && r.IsOnline(c.now) != *f.Online {
			continue
		}
		if f.MinTransferRx != nil && r.TransferRx < *f.MinTransferRx {
			continue
		}
		if f.MinTransferTx != nil && r.TransferTx < *f.MinTransferTx {
			continue
		}
		out = append(out, r)
	}
	return c.derive(out)
}

// Search keeps records whose name contains term ignoring case, or whose address or public key
// contains term exactly. An empty term matches everything.
func (c *Collection) Search(term string) *Collection {
	if term == "" {
		return c.derive(c.Records())
	}
	lower := strings.ToLower(term)
	out := make([]Record, 0, len(c.records))
	for _, r := range c.records {
		if strings.Contains(strings.ToLower(r.Name), lower) ||
			strings.Contains(r.Address, term) ||
			strings.Contains(r.PublicKey, term) {
			out = append(out, r)
		}
	}
	return c.derive(out)
}

// SortByName sorts case-insensitively by name, ascending by default
func (c *Collection) SortByName(order Order) *Collection {
	desc := order == OrderDesc
	return c.sorted(func(a, b Record) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}, desc)
}

// SortByCreatedAt sorts by creation time, ascending by default
func (c *Collection) SortByCreatedAt(order Order) *Collection {
	desc := order == OrderDesc
	return c.sorted(func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	}, desc)
}

// SortByTransfer sorts by received plus sent bytes, descending by default
func (c *Collection) SortByTransfer(order Order) *Collection {
	desc := order != OrderAsc
	return c.sorted(func(a, b Record) int {
		ta, tb := a.TransferTotal(), b.TransferTotal()
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		}
		return 0
	}, desc)
}

// sorted applies cmp in the requested direction and breaks ties by ascending ID
func (c *Collection) sorted(cmp func(a, b Record) int, desc bool) *Collection {
	out := c.Records()
	sort.SliceStable(out, func(i, j int) bool {
		v := cmp(out[i], out[j])
		if desc {
			v = -v
		}
		if v != 0 {
			return v < 0
		}
		return out[i].ID < out[j].ID
	})
	return c.derive(out)
}

// Paginate returns the requested page. Pages are 1-based; a page outside the range yields no items.
func (c *Collection) Paginate(req PageRequest) Page {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	page := req.Page
	if page < 1 {
		page = 1
	}

	total := len(c.records)
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}

	// page <= totalPages keeps (page-1)*limit below total, so nothing overflows
	items := []Record{}
	if page <= totalPages {
		start := (page - 1) * limit
		end := start + min(limit, total-start)
		for _, r := range c.records[start:end] {
			items = append(items, r.clone())
		}
	}

	return Page{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Statistics aggregates counts and transfer totals over the collection
func (c *Collection) Statistics() Statistics {
	var s Statistics
	for _, r := range c.records {
		s.Total++
		if r.Enabled {
			s.Enabled++
		} else {
			s.Disabled++
		}
		if r.IsOnline(c.now) {
			s.Online++
		} else {
			s.Offline++
		}
		s.TotalRx += r.TransferRx
		s.TotalTx += r.TransferTx
	}
	return s
}
