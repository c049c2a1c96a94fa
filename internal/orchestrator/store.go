package orchestrator

// Store is the persistence abstraction for instance status.
// The Registry serializes access; implementations need not be safe for
// concurrent use.
type Store interface {
	Get(index int) (InstanceStatus, bool)
	Put(st InstanceStatus)
	Indexes() []int
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	statuses map[int]InstanceStatus
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		statuses: make(map[int]InstanceStatus),
	}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(index int) (InstanceStatus, bool) {
	st, ok := s.statuses[index]
	return st, ok
}

// Put implements Store.Put.
func (s *InMemoryStore) Put(st InstanceStatus) {
	s.statuses[st.Index] = st
}

// Indexes implements Store.Indexes.
func (s *InMemoryStore) Indexes() []int {
	ids := make([]int, 0, len(s.statuses))
	for id := range s.statuses {
		ids = append(ids, id)
	}
	return ids
}
