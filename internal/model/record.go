package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Kind classifies a source category.
type Kind string

const (
	KindStudent Kind = "student"
	KindOffice  Kind = "office"
)

// Attribute is one named field of an ingested row.
type Attribute struct {
	Name  string
	Value string
}

// Attributes holds a row's fields in header order. The JSON form is an
// object whose keys keep that order.
type Attributes []Attribute

// Get returns the value for name and whether the field is present.
func (a Attributes) Get(name string) (string, bool) {
	for _, f := range a {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Names returns the field names in order.
func (a Attributes) Names() []string {
	names := make([]string, len(a))
	for i, f := range a {
		names[i] = f.Name
	}
	return names
}

// Set replaces the value of an existing field or appends a new one.
func (a Attributes) Set(name, value string) Attributes {
	for i, f := range a {
		if f.Name == name {
			a[i].Value = value
			return a
		}
	}
	return append(a, Attribute{Name: name, Value: value})
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// Map returns the fields as an unordered map.
func (a Attributes) Map() map[string]any {
	m := make(map[string]any, len(a))
	for _, f := range a {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON encodes the fields as an object in field order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of string values, keeping key order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "attributes: read token")
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eris.New("attributes: expected object")
	}

	out := Attributes{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "attributes: read key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return eris.New("attributes: expected string key")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return eris.Wrapf(err, "attributes: decode value for %q", key)
		}
		out = out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "attributes: read closing brace")
	}
	*a = out
	return nil
}

// Record is one ingested point with its source row.
type Record struct {
	Source     string     `json:"source"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Attributes Attributes `json:"attributes"`
}

// Point returns the record's coordinate.
func (r Record) Point() Point {
	return Point{Lat: r.Latitude, Lon: r.Longitude}
}
