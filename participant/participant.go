// Package participant holds the per-session participant record with its immutable identifier
package participant

import (
	"iter"
	"strings"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// KeyID is the reserved info key carrying the participant identifier
const KeyID = "Id"

var (
	ErrImmutableID = goerr.New("participant id cannot be changed")
	ErrMalformed   = goerr.New("malformed participant field")
)

// Participant is an ordered info map whose Id entry is fixed at construction
type Participant struct {
	info *orderedmap.OrderedMap[string, string]
}

// New builds a participant from info; a fresh UUIDv4 is assigned when info carries no Id
func New(info map[string]string, order ...string) *Participant {
	p := &Participant{info: orderedmap.NewOrderedMap[string, string]()}

	id, ok := info[KeyID]
	if !ok || id == "" {
		id = GenerateID()
	}
	p.info.Set(KeyID, id)

	seen := map[string]bool{KeyID: true}
	for _, k := range order {
		if v, ok := info[k]; ok && !seen[k] {
			p.info.Set(k, v)
			seen[k] = true
		}
	}
	for k, v := range info {
		if !seen[k] {
			p.info.Set(k, v)
		}
	}
	return p
}

// Parse builds a participant from key=value pairs, keeping their order
func Parse(pairs []string) (*Participant, error) {
	info := make(map[string]string, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, goerr.Wrap(ErrMalformed, "expected key=value", goerr.V("field", pair))
		}
		info[k] = strings.TrimSpace(v)
		order = append(order, k)
	}
	return New(info, order...), nil
}

func GenerateID() string {
	return uuid.NewString()
}

func (p *Participant) ID() string {
	id, _ := p.info.Get(KeyID)
	return id
}

func (p *Participant) Get(key string) (string, bool) {
	return p.info.Get(key)
}

// Set stores a field; writing the current Id back is a no-op, any other Id value fails
func (p *Participant) Set(key, value string) error {
	if key == KeyID {
		if value != p.ID() {
			return goerr.Wrap(ErrImmutableID, "set", goerr.V("id", p.ID()), goerr.V("value", value))
		}
		return nil
	}
	p.info.Set(key, value)
	return nil
}

func (p *Participant) Delete(key string) error {
	if key == KeyID {
		return goerr.Wrap(ErrImmutableID, "delete", goerr.V("id", p.ID()))
	}
	p.info.Delete(key)
	return nil
}

func (p *Participant) Len() int {
	return p.info.Len()
}

// All iterates the fields in insertion order, Id first
func (p *Participant) All() iter.Seq2[string, string] {
	return p.info.AllFromFront()
}

// Map returns a copy of the fields
func (p *Participant) Map() map[string]string {
	out := make(map[string]string, p.info.Len())
	for k, v := range p.info.AllFromFront() {
		out[k] = v
	}
	return out
}

func (p *Participant) String() string {
	return p.ID()
}
