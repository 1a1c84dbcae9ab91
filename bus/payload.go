package bus

import "github.com/xrw67/thefox/internal/wire"

// Payload is an ordered mapping from string keys to string values
// used both as a call's argument set and as its result set. The zero
// value is an empty payload ready to use.
//
// Key order is the order of first Set, it is preserved on the wire so
// serialization stays deterministic. A payload is mutated only by its
// owner before it is handed to a call or returned from a handler.
type Payload struct {
	keys   []string
	values map[string]string
}

// In is a call's argument payload.
type In = Payload

// Out is a call's result payload.
type Out = Payload

// Set stores the value under key. An existing key is overwritten and
// keeps its position.
func (p *Payload) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}

	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}

	p.values[key] = value
}

// Get returns the value stored under key or the empty string if the
// key is absent. Use Lookup to tell an absent key from an empty value.
func (p *Payload) Get(key string) string {
	return p.values[key]
}

// Lookup returns the value stored under key and whether it is present.
func (p *Payload) Lookup(key string) (string, bool) {
	v, ok := p.values[key]

	return v, ok
}

// Len returns the number of keys in the payload.
func (p *Payload) Len() int {
	return len(p.keys)
}

// Keys returns the payload keys in their first-set order.
func (p *Payload) Keys() []string {
	return append([]string{}, p.keys...)
}

// Copy returns an independent copy of the whole payload.
func (p *Payload) Copy() *Payload {
	np := new(Payload)
	for _, k := range p.keys {
		np.Set(k, p.values[k])
	}

	return np
}

func (p *Payload) entries() []wire.Entry {
	if p == nil || len(p.keys) == 0 {
		return nil
	}

	ee := make([]wire.Entry, 0, len(p.keys))
	for _, k := range p.keys {
		ee = append(ee, wire.Entry{Key: k, Value: p.values[k]})
	}

	return ee
}

func payloadOf(ee []wire.Entry) *Payload {
	p := new(Payload)
	for _, e := range ee {
		p.Set(e.Key, e.Value)
	}

	return p
}
