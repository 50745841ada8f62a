package model

// Ref points at a model. It is either Unresolved (only the name is known, the
// model may not exist yet) or Resolved (bound to a model handle).
type Ref struct {
	name  string
	model *Model
}

// Unresolved returns a forward reference to the model called name.
func Unresolved(name string) Ref { return Ref{name: name} }

// Resolved returns a reference bound to m.
func Resolved(m *Model) Ref { return Ref{name: m.name, model: m} }

// Name returns the referenced model name. It is known in both states.
func (r Ref) Name() string { return r.name }

// Model returns the bound model, or nil while unresolved.
func (r Ref) Model() *Model { return r.model }

func (r Ref) IsResolved() bool { return r.model != nil }

func (r Ref) IsZero() bool { return r.name == "" }
