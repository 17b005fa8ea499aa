package fit

// Table maps the 16 local message types to their current definitions. It is a
// plain value: assigning a Table snapshots it.
type Table struct {
	defs    [maxLocalTypes]*Definition
	defined uint16
}

// Define binds local to def, replacing any earlier binding.
func (t *Table) Define(local uint8, def *Definition) {
	local &= recordLocalTypeMask
	t.defs[local] = def
	t.defined |= 1 << local
}

func (t *Table) Lookup(local uint8) (*Definition, bool) {
	if local >= maxLocalTypes || t.defined&(1<<local) == 0 {
		return nil, false
	}
	return t.defs[local], true
}

func (t *Table) Defined(local uint8) bool {
	return local < maxLocalTypes && t.defined&(1<<local) != 0
}

// Len returns how many local types are bound.
func (t *Table) Len() int {
	n := 0
	for i := uint8(0); i < maxLocalTypes; i++ {
		if t.Defined(i) {
			n++
		}
	}
	return n
}
