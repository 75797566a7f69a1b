package density

// NodeRef refers to a node either by its full metadata or only by id.
// Use Resolved or Unresolved to build one; the zero value refers to nothing.
type NodeRef struct {
	id   string
	node *Node
}

// Resolved wraps a node whose metadata is already known.
func Resolved(n Node) NodeRef {
	return NodeRef{id: n.ID, node: &n}
}

// Unresolved wraps a bare node id.
func Unresolved(id string) NodeRef {
	return NodeRef{id: id}
}

// ID returns the referenced node id.
func (r NodeRef) ID() string { return r.id }

// IsResolved reports whether the reference carries node metadata.
func (r NodeRef) IsResolved() bool { return r.node != nil }

// Resolve returns the node metadata, consulting dir when the reference is
// unresolved. The second result is false when the node cannot be found.
func (r NodeRef) Resolve(dir NodeDirectory) (Node, bool) {
	if r.node != nil {
		return *r.node, true
	}
	if r.id == "" {
		return Node{}, false
	}
	return dir.Lookup(r.id)
}

// NodeDirectory indexes node metadata by id.
type NodeDirectory map[string]Node

// NewNodeDirectory builds a directory from a node list. Later duplicates win.
func NewNodeDirectory(nodes []Node) NodeDirectory {
	dir := make(NodeDirectory, len(nodes))
	for _, n := range nodes {
		dir[n.ID] = n
	}
	return dir
}

// Lookup returns the node with the given id.
func (d NodeDirectory) Lookup(id string) (Node, bool) {
	n, ok := d[id]
	return n, ok
}
