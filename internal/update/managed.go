package update

import "fmt"

// Managed ties an object's registration to its lifetime: Init registers it
// once, Close unregisters it once. Embed it in types that are not driven by
// a host lifecycle of their own.
//
//	type spinner struct {
//		update.Managed
//		angle float64
//	}
//
//	s := &spinner{}
//	s.Init(coord, s)
//	defer s.Close()
type Managed struct {
	coord      *Coordinator
	self       any
	registered bool
	closed     bool
}

// Init registers self with c. Repeated calls are no-ops, as are calls after Close.
func (m *Managed) Init(c *Coordinator, self any) {
	if m.registered || m.closed || c == nil {
		return
	}
	m.coord = c
	m.self = self
	m.registered = c.Register(self)
}

// Registered reports whether Init registered the object.
func (m *Managed) Registered() bool { return m.registered && !m.closed }

// Close unregisters the object. It is safe to call more than once.
func (m *Managed) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.registered {
		m.coord.Unregister(m.self)
	}
	m.coord = nil
	m.self = nil
	return nil
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
