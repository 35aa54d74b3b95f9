package ecs

// Removable is implemented by all component stores so the Registry can
// clear an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// Sized stores report their live row count.
type Sized interface {
	Len() int
}

type namedStore struct {
	name  string
	store Removable
}

// Registry tracks the component stores attached to a World.
type Registry struct {
	stores []namedStore
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]namedStore, 0, 4),
	}
}

// Register attaches a store under name. Names are for diagnostics only and
// need not be unique.
func (r *Registry) Register(name string, store Removable) {
	r.stores = append(r.stores, namedStore{name: name, store: store})
}

// RemoveAll clears id from every registered store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.store.Remove(id)
	}
}

// StoreRows returns the row count of each Sized store in registration order.
func (r *Registry) StoreRows() []StoreRows {
	out := make([]StoreRows, 0, len(r.stores))
	for _, s := range r.stores {
		if sz, ok := s.store.(Sized); ok {
			out = append(out, StoreRows{Name: s.name, Rows: sz.Len()})
		}
	}
	return out
}

// StoreRows is one line of StoreRows output.
type StoreRows struct {
	Name string
	Rows int
}
