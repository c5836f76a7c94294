package numbering

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/reqsync/internal/model"
)

func snap(numbers ...string) model.Snapshot {
	s := make(model.Snapshot, len(numbers))
	for i, n := range numbers {
		s[i] = model.Requisition{ID: n, RequisitionNumber: n}
	}
	return s
}

func TestNext(t *testing.T) {
	tests := []struct {
		name string
		in   model.Snapshot
		want string
	}{
		{"empty", nil, "R-1000"},
		{"single", snap("R-1000"), "R-1001"},
		{"garbage only", snap("garbage"), "R-1000"},
		{"max wins regardless of order", snap("R-1005", "R-1010", "R-1002"), "R-1011"},
		{"garbage ignored", snap("R-1003", "n/a", ""), "R-1004"},
		{"non digits stripped", snap("R-20-07"), "R-2008"},
		{"zero treated as nothing parsed", snap("R-0"), "R-1000"},
		{"below first still increments", snap("R-7"), "R-8"},
		{"overflow ignored", snap("R-99999999999999999999", "R-1200"), "R-1201"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.in))
		})
	}
}
