package testutil

import (
	"fmt"

	"github.com/roach88/photostack/internal/ir"
)

// StackIDs returns the ids prefix1 ... prefixN.
func StackIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return ids
}

// NewStackIDGenerator returns a generator producing S1, S2, ... for the
// first n ids and S-N after that.
//
// The same sequence of store writes with this generator produces
// byte-identical journals and golden traces.
func NewStackIDGenerator(n int) *ir.FixedGenerator {
	return ir.NewFixedGenerator("S", StackIDs("S", n)...)
}
