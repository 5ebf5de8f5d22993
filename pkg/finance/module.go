package finance

import (
	"bytes"
	"encoding/json"

	"github.com/guregu/null/v6"
)

// Module is one quoteSummary sub-module (or one flat batch quote object):
// field name to raw JSON value. Numeric fields arrive either plain or as
// {"raw": x, "fmt": "..."}; empty objects and nulls read as absent.
type Module map[string]json.RawMessage

type wrapped struct {
	Raw json.RawMessage `json:"raw"`
	Fmt string          `json:"fmt"`
}

func (m Module) unwrap(name string) (json.RawMessage, bool) {
	raw, ok := m[name]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	if raw[0] == '{' {
		var w wrapped
		if err := json.Unmarshal(raw, &w); err != nil || len(w.Raw) == 0 || bytes.Equal(w.Raw, []byte("null")) {
			return nil, false
		}
		return w.Raw, true
	}
	return raw, true
}

// Float reads a numeric field.
func (m Module) Float(name string) (null.Float, bool) {
	raw, ok := m.unwrap(name)
	if !ok {
		return null.Float{}, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return null.Float{}, false
	}
	return null.FloatFrom(f), true
}

// Int reads an integral field such as a unix date or a share count.
func (m Module) Int(name string) (null.Int, bool) {
	f, ok := m.Float(name)
	if !ok {
		return null.Int{}, false
	}
	return null.IntFrom(int64(f.Float64)), true
}

// Text reads a string field; empty strings read as absent.
func (m Module) Text(name string) (null.String, bool) {
	raw, ok := m[name]
	if !ok {
		return null.String{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return null.String{}, false
	}
	return null.StringFrom(s), true
}

// merger walks an ordered list of source modules and returns, per field, the
// first present value. Each name is tried in every source before moving to
// the next source.
type merger []Module

func (ms merger) float(names ...string) null.Float {
	for _, m := range ms {
		for _, n := range names {
			if v, ok := m.Float(n); ok {
				return v
			}
		}
	}
	return null.Float{}
}

func (ms merger) int(names ...string) null.Int {
	for _, m := range ms {
		for _, n := range names {
			if v, ok := m.Int(n); ok {
				return v
			}
		}
	}
	return null.Int{}
}

func (ms merger) text(names ...string) null.String {
	for _, m := range ms {
		for _, n := range names {
			if v, ok := m.Text(n); ok {
				return v
			}
		}
	}
	return null.String{}
}
