package worker

import (
	"fmt"

	"github.com/gclaussn/go-procengine/engine"
)

// Variables collects typed values, which are encoded to engine data when a process instance is started or a handler succeeds.
type Variables map[string]typedValue

// typedValue is a Go value and the encoding to store it with. A nil value deletes the variable.
type typedValue struct {
	encoding string // empty for the default encoding of the worker
	v        any
}

// Put sets a value, which is stored with the default encoding.
func (vs Variables) Put(name string, v any) {
	vs.PutEncoded(name, "", v)
}

// PutText sets a value, which is stored as plain text.
func (vs Variables) PutText(name string, v any) {
	vs.PutEncoded(name, TextEncoding, v)
}

// PutEncoded sets a value, which is stored with a specific encoding. A blank name or a nil value is ignored.
func (vs Variables) PutEncoded(name string, encoding string, v any) {
	if name == "" || v == nil {
		return
	}
	vs[name] = typedValue{encoding: encoding, v: v}
}

// Delete removes a variable from the process or node instance, when the variables are written.
func (vs Variables) Delete(name string) {
	if name != "" {
		vs[name] = typedValue{}
	}
}

// EncodeVariables encodes variables to engine data. A deleted variable results in nil data.
func (w *Worker) EncodeVariables(variables Variables) (map[string]*engine.Data, error) {
	if len(variables) == 0 {
		return nil, nil
	}

	encoded := make(map[string]*engine.Data, len(variables))
	for name, tv := range variables {
		data, err := w.encode(tv)
		if err != nil {
			return nil, fmt.Errorf("failed to encode variable %s: %v", name, err)
		}
		encoded[name] = data
	}
	return encoded, nil
}

func (w *Worker) encode(tv typedValue) (*engine.Data, error) {
	if tv.v == nil {
		return nil, nil
	}

	encoding := tv.encoding
	if encoding == "" {
		encoding = w.options.DefaultEncoding
	}

	encoder := w.Encoder(encoding)
	if encoder == nil {
		return nil, fmt.Errorf("no encoder registered for %s", encoding)
	}

	s, err := encoder.Encode(tv.v)
	if err != nil {
		return nil, err
	}
	return &engine.Data{Encoding: encoding, Value: s}, nil
}

// decode converts engine data into a typed Go value, using the decoder of the data's encoding.
func (w *Worker) decode(data engine.Data, v any) error {
	decoder := w.Decoder(data.Encoding)
	if decoder == nil {
		return fmt.Errorf("no decoder registered for %s", data.Encoding)
	}
	return decoder.Decode(data.Value, v)
}
