// Package chain tracks the dependent requests already being sent within one
// top-level render, so that requests depending on each other terminate.
package chain

// MetadataName is the name of the metadata entries carrying the chain
// from a resolver to the transport executing a dependent request.
const MetadataName = "cookie-chain-request"

// Metadata is a name/value pair passed along with a request execution.
type Metadata struct {
	Name  string
	Value string
}

// Chain is the ordered list of request ids in flight. A Chain is never
// modified in place, Append returns a new one.
type Chain []string

// Contains returns true if the request id is already part of the chain.
func (c Chain) Contains(id string) bool {
	for _, v := range c {
		if v == id {
			return true
		}
	}
	return false
}

// Append returns a copy of the chain with the id added to the end.
func (c Chain) Append(id string) Chain {
	next := make(Chain, len(c), len(c)+1)
	copy(next, c)
	return append(next, id)
}

// Metadata encodes the chain as one entry per request id, in order.
func (c Chain) Metadata() []Metadata {
	meta := make([]Metadata, 0, len(c))
	for _, id := range c {
		meta = append(meta, Metadata{Name: MetadataName, Value: id})
	}
	return meta
}

// FromMetadata reconstructs a chain from execution metadata.
// Entries with other names are ignored.
func FromMetadata(meta []Metadata) Chain {
	c := make(Chain, 0)
	for _, m := range meta {
		if m.Name == MetadataName {
			c = append(c, m.Value)
		}
	}
	return c
}
