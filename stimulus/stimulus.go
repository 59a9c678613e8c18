// Package stimulus models the images shown to the participant and loads them from tabular sources
package stimulus

import (
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrMissingAsset is a configuration error: no image column or the file does not exist
	ErrMissingAsset = goerr.New("missing stimulus asset")
	// ErrMalformedRecord is a configuration error: a record cannot be interpreted
	ErrMalformedRecord = goerr.New("malformed stimulus record")
)

// Stimulus is one image with its approach goal
// Copying the struct shares Metadata; use Clone for an independent instance
type Stimulus struct {
	Name           string
	ShouldApproach bool
	Asset          string
	Metadata       Metadata
}

func (s Stimulus) String() string { return s.Name }

// Clone returns a deep copy; metadata changes on the clone never reach s
func (s Stimulus) Clone() Stimulus {
	c := s
	c.Metadata = s.Metadata.Clone()
	return c
}

// CheckAsset verifies the asset reference points to an existing regular file
func (s Stimulus) CheckAsset() error {
	if s.Asset == "" {
		return goerr.Wrap(ErrMissingAsset, "empty asset reference", goerr.V("stimulus", s.Name))
	}
	info, err := os.Stat(s.Asset)
	if err != nil {
		return goerr.Wrap(ErrMissingAsset, "unable to find image",
			goerr.V("stimulus", s.Name), goerr.V("asset", s.Asset), goerr.V("cause", err.Error()))
	}
	if info.IsDir() {
		return goerr.Wrap(ErrMissingAsset, "asset is a directory",
			goerr.V("stimulus", s.Name), goerr.V("asset", s.Asset))
	}
	return nil
}

// Field is one key/value pair of a flattened stimulus
type Field struct {
	Key   string
	Value any
}

// PlainData flattens the stimulus into name, should_approach and then metadata in insertion order
// Values that are not bool, integer or float are stringified
func (s Stimulus) PlainData() []Field {
	fields := make([]Field, 0, s.Metadata.Len()+2)
	fields = append(fields,
		Field{Key: KeyName, Value: s.Name},
		Field{Key: KeyShouldApproach, Value: s.ShouldApproach},
	)
	for k, v := range s.Metadata.All() {
		fields = append(fields, Field{Key: k, Value: plainValue(v)})
	}
	return fields
}

func plainValue(v any) any {
	switch v := v.(type) {
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
