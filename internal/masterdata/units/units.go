// Package units enumerates the measurement units a product may carry.
package units

// Unit is a measurement unit code.
type Unit string

const (
	Piece  Unit = "piece"
	Kg     Unit = "kg"
	Gram   Unit = "gram"
	Liter  Unit = "liter"
	Ml     Unit = "ml"
	Meter  Unit = "meter"
	Box    Unit = "box"
	Pack   Unit = "pack"
	Bottle Unit = "bottle"
)

var all = []Unit{Piece, Kg, Gram, Liter, Ml, Meter, Box, Pack, Bottle}

// Valid reports whether the code is a known unit.
func Valid(u Unit) bool {
	for _, known := range all {
		if known == u {
			return true
		}
	}
	return false
}

// List returns every known unit code.
func List() []Unit {
	out := make([]Unit, len(all))
	copy(out, all)
	return out
}
