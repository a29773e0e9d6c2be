package scene

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned when serialized scene data cannot be decoded.
var ErrMalformed = errors.New("malformed scene data")

// Snapshot is a complete, self-describing scene state. History entries
// carry elements only; the viewport travels with synced snapshots.
type Snapshot struct {
	Elements  []Object `json:"elements"`
	Zoom      float64  `json:"zoom,omitempty"`
	Pan       *Point   `json:"pan,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// Encode serializes the snapshot. A nil element list encodes as [].
func (s Snapshot) Encode() ([]byte, error) {
	if s.Elements == nil {
		s.Elements = []Object{}
	}
	return json.Marshal(s)
}

// Decode parses and validates serialized scene data.
func Decode(data []byte) (Snapshot, error) {
	var raw struct {
		Elements  *[]Object `json:"elements"`
		Zoom      float64   `json:"zoom"`
		Pan       *Point    `json:"pan"`
		Timestamp int64     `json:"timestamp"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return Snapshot{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if raw.Elements == nil {
		return Snapshot{}, fmt.Errorf("%w: missing elements", ErrMalformed)
	}
	if raw.Zoom < 0 {
		return Snapshot{}, fmt.Errorf("%w: negative zoom", ErrMalformed)
	}

	seen := make(map[string]struct{}, len(*raw.Elements))
	for i, o := range *raw.Elements {
		if err := validateObject(o); err != nil {
			return Snapshot{}, fmt.Errorf("%w: element %d: %v", ErrMalformed, i, err)
		}
		if _, dup := seen[o.ID]; dup {
			return Snapshot{}, fmt.Errorf("%w: element %d: duplicate id %q", ErrMalformed, i, o.ID)
		}
		seen[o.ID] = struct{}{}
	}

	return Snapshot{
		Elements:  *raw.Elements,
		Zoom:      raw.Zoom,
		Pan:       raw.Pan,
		Timestamp: raw.Timestamp,
	}, nil
}

// Validate reports whether data is well-formed serialized scene data.
func Validate(data []byte) error {
	_, err := Decode(data)
	return err
}

func validateObject(o Object) error {
	if o.ID == "" {
		return errors.New("missing id")
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("unknown type %q", o.Kind)
	}
	if o.Width < 0 || o.Height < 0 || o.Radius < 0 {
		return errors.New("negative extent")
	}
	return nil
}
