package segconv

// ClassRegistry assigns integer class IDs to string labels in order of first appearance.
//
// IDs start at 0 and are never reassigned. A ClassRegistry is not safe for concurrent use.
type ClassRegistry struct {
	ids   map[string]int
	names []string
}

// NewClassRegistry returns an empty registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{ids: make(map[string]int)}
}

// GetOrAssign returns the ID for label, assigning the next free ID if label was not seen before.
func (r *ClassRegistry) GetOrAssign(label string) int {
	if id, ok := r.ids[label]; ok {
		return id
	}
	id := len(r.names)
	r.ids[label] = id
	r.names = append(r.names, label)
	return id
}

// AssignAll returns the IDs for labels, in order.
func (r *ClassRegistry) AssignAll(labels []string) []int {
	ids := make([]int, len(labels))
	for i, l := range labels {
		ids[i] = r.GetOrAssign(l)
	}
	return ids
}

// Len is the number of distinct labels.
func (r *ClassRegistry) Len() int {
	return len(r.names)
}

// Names returns the labels indexed by class ID.
func (r *ClassRegistry) Names() []string {
	return append([]string(nil), r.names...)
}
