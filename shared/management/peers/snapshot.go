package peers

import (
	"fmt"
)

// Snapshot is an immutable, insertion ordered set of records keyed by ID.
// A Snapshot is never modified after construction, so it can be shared freely.
type Snapshot struct {
	records []Record
	index   map[string]int
}

// NewSnapshot builds a snapshot keeping the order of records.
// It fails if two records share an ID.
func NewSnapshot(records []Record) (*Snapshot, error) {
	s := &Snapshot{
		records: make([]Record, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, r := range records {
		if _, ok := s.index[r.ID]; ok {
			return nil, fmt.Errorf("duplicate peer id %q in snapshot", r.ID)
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r.clone())
	}
	return s, nil
}

// EmptySnapshot returns a snapshot without records
func EmptySnapshot() *Snapshot {
	return &Snapshot{index: map[string]int{}}
}

// fromUnique builds a snapshot from records already known to have unique IDs
func fromUnique(records []Record) *Snapshot {
	s := &Snapshot{
		records: records,
		index:   make(map[string]int, len(records)),
	}
	for i, r := range records {
		s.index[r.ID] = i
	}
	return s
}

// Len returns the number of records
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Get returns the record with the given ID
func (s *Snapshot) Get(id string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i].clone(), true
}

// Records returns a copy of the records in snapshot order
func (s *Snapshot) Records() []Record {
	if s == nil {
		return nil
	}
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.clone()
	}
	return out
}

// IDs returns the record IDs in snapshot order
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.records))
	for i, r := range s.records {
		ids[i] = r.ID
	}
	return ids
}
