package transport

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

var nullBody = []byte("null")

// Response is a decoded read result held as validated JSON.
// REST bodies are kept verbatim; gRPC replies are normalized into the same shapes.
type Response struct {
	raw []byte
}

// NewResponse validates body as JSON. An empty body is treated as null.
func NewResponse(body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Response{raw: nullBody}, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, NewDecodeError("response body", errors.New("invalid JSON"))
	}
	raw := make([]byte, len(trimmed))
	copy(raw, trimmed)
	return &Response{raw: raw}, nil
}

// ResponseFrom marshals v into a Response.
func ResponseFrom(v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewDecodeError("response value", err)
	}
	return &Response{raw: data}, nil
}

// Bytes returns the JSON body. Callers must not modify it.
func (r *Response) Bytes() []byte {
	if r == nil {
		return nullBody
	}
	return r.raw
}

func (r *Response) result() gjson.Result {
	return gjson.ParseBytes(r.Bytes())
}

func (r *Response) IsArray() bool {
	return r.result().IsArray()
}

func (r *Response) IsObject() bool {
	return r.result().IsObject()
}

// IsNull reports an empty or literal null body.
func (r *Response) IsNull() bool {
	return r.result().Type == gjson.Null
}

// Get evaluates a gjson path against the body.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Bytes(), path)
}

// Records returns the object elements of an array body.
// Non-object elements are skipped; a non-array body yields nil.
func (r *Response) Records() ([]Record, error) {
	res := r.result()
	if !res.IsArray() {
		return nil, nil
	}
	return recordsOf(res)
}

// Record returns the body as a single object, or nil when it is not one.
func (r *Response) Record() (Record, error) {
	res := r.result()
	if !res.IsObject() {
		return nil, nil
	}
	return decodeRecord(res.Raw)
}

// RecordsAt returns the object elements of the array at path.
func (r *Response) RecordsAt(path string) ([]Record, error) {
	res := r.Get(path)
	if !res.IsArray() {
		return nil, nil
	}
	return recordsOf(res)
}

func recordsOf(res gjson.Result) ([]Record, error) {
	var (
		out []Record
		err error
	)
	res.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		var rec Record
		rec, err = decodeRecord(value.Raw)
		if err != nil {
			return false
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeRecord keeps numbers as json.Number so large identifiers survive.
func decodeRecord(raw string) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, NewDecodeError("record", err)
	}
	return rec, nil
}

// DecodeRecord parses a JSON object body into a Record. Empty or null bodies yield nil.
func DecodeRecord(body []byte) (Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, nullBody) {
		return nil, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, NewDecodeError("response body", errors.New("invalid JSON"))
	}
	res := gjson.ParseBytes(trimmed)
	if res.IsArray() {
		first := res.Get("0")
		if !first.IsObject() {
			return nil, nil
		}
		return decodeRecord(first.Raw)
	}
	if !res.IsObject() {
		return nil, nil
	}
	return decodeRecord(res.Raw)
}
