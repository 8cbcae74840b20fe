package scene

// ID is the stable identity of a retained visual element.
type ID string

// Element identities. A scene holds at most one element per identity.
const (
	GlowFilter   ID = "glow-filter-def"
	FillGradient ID = "fill-gradient-def"
	GradientFill ID = "gradient-fill-rect"
	Baseline     ID = "baseline"
	LinePath     ID = "line-path"
	XAxis        ID = "x-axis"
	YAxis        ID = "y-axis"
	BadgeRect    ID = "value-badge-rect"
	BadgeText    ID = "value-badge-text"
)

// Attr is a single name="value" pair.
type Attr struct {
	Name  string
	Value string
}

// Node is a plain subtree owned by an element, such as axis ticks or filter
// primitives. Nodes are replaced wholesale; only elements are reconciled.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Children []Node
}

func equalNodes(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Tag != b[i].Tag || a[i].Text != b[i].Text || len(a[i].Attrs) != len(b[i].Attrs) {
			return false
		}
		for j := range a[i].Attrs {
			if a[i].Attrs[j] != b[i].Attrs[j] {
				return false
			}
		}
		if !equalNodes(a[i].Children, b[i].Children) {
			return false
		}
	}
	return true
}

// Element is the retained state of one visual element.
//
// Static attributes are fixed when the element is created. Dynamic
// attributes, text and children are rewritten on every pass, but a write that
// leaves the value unchanged does not count as a change.
type Element struct {
	id     ID
	tag    string
	static []Attr

	dynamic  map[string]string
	order    []string
	text     string
	children []Node

	revision int
	dirty    bool
}

func newElement(id ID, tag string, static []Attr) *Element {
	return &Element{
		id:      id,
		tag:     tag,
		static:  static,
		dynamic: make(map[string]string),
	}
}

// ID returns the element identity.
func (e *Element) ID() ID { return e.id }

// Tag returns the SVG tag name.
func (e *Element) Tag() string { return e.tag }

// Text returns the text content.
func (e *Element) Text() string { return e.text }

// Children returns the owned subtree.
func (e *Element) Children() []Node { return e.children }

// Revision counts the passes in which a dynamic property of e changed.
func (e *Element) Revision() int { return e.revision }

// Attr returns a static or dynamic attribute value.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.static {
		if a.Name == name {
			return a.Value, true
		}
	}
	v, ok := e.dynamic[name]
	return v, ok
}

// Attrs returns static attributes followed by dynamic ones in first-set order.
func (e *Element) Attrs() []Attr {
	out := make([]Attr, 0, len(e.static)+len(e.order))
	out = append(out, e.static...)
	for _, name := range e.order {
		out = append(out, Attr{Name: name, Value: e.dynamic[name]})
	}
	return out
}

func (e *Element) set(name, value string) {
	old, ok := e.dynamic[name]
	if ok && old == value {
		return
	}
	if !ok {
		e.order = append(e.order, name)
	}
	e.dynamic[name] = value
	e.dirty = true
}

func (e *Element) setText(text string) {
	if e.text == text {
		return
	}
	e.text = text
	e.dirty = true
}

func (e *Element) setChildren(children []Node) {
	if equalNodes(e.children, children) {
		return
	}
	e.children = children
	e.dirty = true
}

// commit closes a pass and reports whether anything changed in it.
func (e *Element) commit() bool {
	if !e.dirty {
		return false
	}
	e.dirty = false
	e.revision++
	return true
}

// Registry maps identities to their single retained element.
type Registry struct {
	elements map[ID]*Element
	order    []ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{elements: make(map[ID]*Element)}
}

// Lookup returns the element registered under id.
func (r *Registry) Lookup(id ID) (*Element, bool) {
	e, ok := r.elements[id]
	return e, ok
}

// Ensure returns the element registered under id, creating it with tag and
// static attributes if it does not exist yet. created reports whether this
// call inserted it.
func (r *Registry) Ensure(id ID, tag string, static func() []Attr) (e *Element, created bool) {
	if e, ok := r.elements[id]; ok {
		return e, false
	}
	var attrs []Attr
	if static != nil {
		attrs = static()
	}
	e = newElement(id, tag, attrs)
	r.elements[id] = e
	r.order = append(r.order, id)
	return e, true
}

// Len returns the number of registered elements.
func (r *Registry) Len() int {
	return len(r.order)
}

// IDs returns identities in creation order.
func (r *Registry) IDs() []ID {
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}
