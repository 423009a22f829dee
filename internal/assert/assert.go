// Package assert encodes contracts the core itself must maintain (§7):
// power-of-two spacings, in-bounds writes, and similar invariants. A
// failing assertion is a programmer error, not a runtime error — it
// panics rather than returning a Kind from internal/errs.
package assert

import "fmt"

// True panics with msg (formatted with args) if cond is false.
func True(cond bool, msg string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("idx2: assertion failed: "+msg, args...))
	}
}
