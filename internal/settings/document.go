package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/muhammadmuzzammil1998/jsonc"
)

// SDK config fields managed here.
const (
	FieldRosenpassEnabled    = "RosenpassEnabled"
	FieldRosenpassPermissive = "RosenpassPermissive"
	FieldPreSharedKey        = "PreSharedKey"
	FieldManagementURL       = "ManagementURL"
	FieldAdminURL            = "AdminURL"
)

// ErrFieldAbsent is returned by Set for a field the document lacks.
var ErrFieldAbsent = errors.New("field absent from config")

// Document is a top-level JSON object whose fields keep their order and
// raw encoding. Fields that are never set are written back byte for byte.
type Document struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: make(map[string]json.RawMessage)}
}

// ParseDocument parses a JSON object. Comments are tolerated.
func ParseDocument(blob []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(blob)))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("parse config: not a JSON object")
	}
	d := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("parse config: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse config field %q: %w", key, err)
		}
		if _, dup := d.values[key]; !dup {
			d.keys = append(d.keys, key)
		}
		d.values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return d, nil
}

// Has reports whether field is present.
func (d *Document) Has(field string) bool {
	_, ok := d.values[field]
	return ok
}

// Bool returns a boolean field. ok is false when the field is absent or
// not a boolean.
func (d *Document) Bool(field string) (v bool, ok bool) {
	raw, present := d.values[field]
	if !present {
		return false, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}

// String returns a string field. ok is false when the field is absent or
// not a string.
func (d *Document) String(field string) (v string, ok bool) {
	raw, present := d.values[field]
	if !present {
		return "", false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// Set replaces an existing field. Absent fields are not inserted.
func (d *Document) Set(field string, v any) error {
	if !d.Has(field) {
		return fmt.Errorf("%w: %s", ErrFieldAbsent, field)
	}
	return d.put(field, v)
}

// Upsert replaces field, appending it when absent.
func (d *Document) Upsert(field string, v any) error {
	return d.put(field, v)
}

func (d *Document) put(field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	if !d.Has(field) {
		d.keys = append(d.keys, field)
	}
	d.values[field] = raw
	return nil
}

// Bytes serializes the document with two-space indentation.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(d.values[k])
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("format config: %w", err)
	}
	return out.Bytes(), nil
}
