package store

// Slice declares a top-level piece of state: its name, its default value and the reducers
// keyed by action type.
type Slice struct {
	Name     string
	Defaults any
	Handlers map[string]Reducer
}

// StateName returns the slice name, so a Slice can be used wherever a state identifier is expected.
func (s Slice) StateName() string {
	return s.Name
}
