package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Snapshot is the full list of requisitions believed current, newest first.
type Snapshot []Requisition

// Clone returns a copy of the slice. Records are copied by value; their
// nested slices are shared, which is safe because nothing edits them in place.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// SortNewestFirst orders the snapshot by CreatedAt descending. The sort is
// stable so records with equal or invalid timestamps keep their order.
func (s Snapshot) SortNewestFirst() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].sortKey() > s[j].sortKey()
	})
}

// IndexOf returns the position of the record with the given id, or -1.
func (s Snapshot) IndexOf(id string) int {
	for i := range s {
		if s[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the record with the given id.
func (s Snapshot) Find(id string) (Requisition, bool) {
	if i := s.IndexOf(id); i >= 0 {
		return s[i], true
	}
	return Requisition{}, false
}

var numberPattern = regexp.MustCompile(`^R-\d+$`)

// ValidNumber reports whether n has the R-<digits> shape.
func ValidNumber(n string) bool {
	return numberPattern.MatchString(n)
}

// SnapshotError lists invariant violations found by Validate.
type SnapshotError struct {
	Problems []string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot invalid: %s", strings.Join(e.Problems, "; "))
}

// Validate checks that ids are unique and numbers are unique and well formed.
func (s Snapshot) Validate() error {
	var problems []string
	ids := make(map[string]struct{}, len(s))
	numbers := make(map[string]struct{}, len(s))
	for i, r := range s {
		if _, dup := ids[r.ID]; dup {
			problems = append(problems, fmt.Sprintf("[%d] duplicate id %q", i, r.ID))
		}
		ids[r.ID] = struct{}{}

		if !ValidNumber(r.RequisitionNumber) {
			problems = append(problems, fmt.Sprintf("[%d] malformed number %q", i, r.RequisitionNumber))
			continue
		}
		if _, dup := numbers[r.RequisitionNumber]; dup {
			problems = append(problems, fmt.Sprintf("[%d] duplicate number %q", i, r.RequisitionNumber))
		}
		numbers[r.RequisitionNumber] = struct{}{}
	}
	if len(problems) > 0 {
		return &SnapshotError{Problems: problems}
	}
	return nil
}
