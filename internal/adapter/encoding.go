package adapter

import (
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// JSON defines an interface for JSON operations to enable mocking
//
//go:generate mockgen -source=encoding.go -destination=../mocks/encoding.go -package=mocks -mock_names=JSON=MockJSON,CanonicalJSON=MockCanonicalJSON
type JSON interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// RealJSON implements JSON using the standard encoding/json package
type RealJSON struct{}

// NewJSON creates a new real JSON implementation
func NewJSON() JSON {
	return &RealJSON{}
}

func (j *RealJSON) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (j *RealJSON) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// CanonicalJSON renders values as RFC 8785 canonical JSON, so equal payloads
// produce identical bytes regardless of field order or number formatting
type CanonicalJSON interface {
	Canonical(v interface{}) ([]byte, error)
}

// RealCanonicalJSON implements CanonicalJSON with encoding/json and jcs
type RealCanonicalJSON struct {
	json JSON
}

// NewCanonicalJSON creates a canonical JSON encoder
func NewCanonicalJSON(j JSON) CanonicalJSON {
	return &RealCanonicalJSON{json: j}
}

func (c *RealCanonicalJSON) Canonical(v interface{}) ([]byte, error) {
	data, err := c.json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(data)
}
