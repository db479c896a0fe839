package tabular

// repair.go fixes a spreadsheet-export artifact: large identifiers (phone
// numbers, account IDs) that a spreadsheet auto-converted to scientific
// notation, e.g. "9.1E+11". Left as float text they lose trailing digits, so
// any field that reads as an integer in exponential form is rewritten to its
// full decimal representation.

import (
	"math/big"
	"regexp"
	"strings"
)

// exponentialRegex matches a decimal number with a positive exponent marker.
// Only the E+/e+ shape is repaired: negative exponents are genuine fractions,
// not mangled identifiers.
var exponentialRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)[eE]\+\d+$`)

// RepairField rewrites a scientific-notation field to its full decimal
// integer form, truncating any fractional component. Fields that do not look
// like exponential numbers pass through unchanged, so values such as
// "NOTE+1" or already-repaired integers are never touched. Idempotent:
// repairing twice yields the same result as repairing once.
func RepairField(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.Contains(trimmed, "+") || !exponentialRegex.MatchString(trimmed) {
		return s
	}

	// big.Float keeps every digit the source had; float64 would silently
	// round identifiers longer than 15 digits.
	f, _, err := big.ParseFloat(trimmed, 10, 256, big.ToNearestEven)
	if err != nil {
		return s
	}

	i, _ := f.Int(nil)
	return i.String()
}

// repairRow repairs every field of a row in place and returns it.
func repairRow(row []string) []string {
	for i, field := range row {
		row[i] = RepairField(field)
	}
	return row
}
