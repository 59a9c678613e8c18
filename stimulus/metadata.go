package stimulus

import (
	"iter"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/m-mizutani/goerr/v2"
)

// Reserved keys map to typed Stimulus fields and never live in Metadata
const (
	KeyName           = "name"
	KeyShouldApproach = "should_approach"
	KeyImage          = "image"
)

var ErrReservedKey = goerr.New("metadata key is reserved")

// IsReserved reports whether key belongs to the fixed stimulus schema
func IsReserved(key string) bool {
	return key == KeyName || key == KeyShouldApproach || key == KeyImage
}

// Metadata is the insertion-ordered side map of a stimulus
// Values are expected to be immutable scalars (strings, numbers, enums); Clone copies the map, not the values
// The zero value is empty and ready to use
type Metadata struct {
	m *orderedmap.OrderedMap[string, any]
}

func NewMetadata() Metadata {
	return Metadata{m: orderedmap.NewOrderedMap[string, any]()}
}

func (md *Metadata) Set(key string, value any) error {
	if IsReserved(key) {
		return goerr.Wrap(ErrReservedKey, "set metadata", goerr.V("key", key))
	}
	if md.m == nil {
		md.m = orderedmap.NewOrderedMap[string, any]()
	}
	md.m.Set(key, value)
	return nil
}

func (md Metadata) Get(key string) (any, bool) {
	if md.m == nil {
		return nil, false
	}
	return md.m.Get(key)
}

// Delete removes key; reserved keys cannot be removed
func (md *Metadata) Delete(key string) error {
	if IsReserved(key) {
		return goerr.Wrap(ErrReservedKey, "delete metadata", goerr.V("key", key))
	}
	if md.m != nil {
		md.m.Delete(key)
	}
	return nil
}

func (md Metadata) Len() int {
	if md.m == nil {
		return 0
	}
	return md.m.Len()
}

// All iterates entries in insertion order
func (md Metadata) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if md.m == nil {
			return
		}
		for k, v := range md.m.AllFromFront() {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Keys returns the keys in insertion order
func (md Metadata) Keys() []string {
	keys := make([]string, 0, md.Len())
	for k := range md.All() {
		keys = append(keys, k)
	}
	return keys
}

func (md Metadata) Clone() Metadata {
	if md.m == nil {
		return Metadata{}
	}
	return Metadata{m: md.m.Copy()}
}
