// Package numbering allocates human-readable requisition numbers.
//
// Numbers are derived from the snapshot the client currently holds, so two
// clients creating at the same time can compute the same number. There is no
// server-side arbitration for this.
package numbering

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/reqsync/internal/model"
)

// First is the number given when nothing in the snapshot parses.
const First = "R-1000"

// Next returns R-<max+1> over every parseable requisition number, or First.
func Next(s model.Snapshot) string {
	var highest int64
	for _, r := range s {
		n, ok := parse(r.RequisitionNumber)
		if ok && n > highest {
			highest = n
		}
	}
	if highest <= 0 {
		return First
	}
	return fmt.Sprintf("R-%d", highest+1)
}

// parse strips every non-digit and reads what is left.
func parse(number string) (int64, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
