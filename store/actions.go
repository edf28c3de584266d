package store

const (
	// InitStateType is the type of the action dispatched once when the store is created.
	InitStateType = "@@INIT"

	// UpdateStateType is the type of the action dispatched when a feature adds slices lazily.
	UpdateStateType = "@@UPDATE_STATE"
)

// InitState is dispatched by New with the default state of all root slices.
type InitState struct{}

// Type implements Action.
func (InitState) Type() string {
	return InitStateType
}

// UpdateState is dispatched by AddFeature. AddedStates holds the defaults of the added slices.
type UpdateState struct {
	AddedStates State
}

// Type implements Action.
func (UpdateState) Type() string {
	return UpdateStateType
}

// AddedNames returns the names of the added slices.
func (u UpdateState) AddedNames() []string {
	names := make([]string, 0, len(u.AddedStates))
	for name := range u.AddedStates {
		names = append(names, name)
	}

	return names
}

// IsLifecycle reports whether action is one of the store's own lifecycle actions.
func IsLifecycle(action Action) bool {
	switch action.(type) {
	case InitState, *InitState, UpdateState, *UpdateState:
		return true
	default:
		return false
	}
}
