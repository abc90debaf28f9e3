package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gclaussn/go-procengine/engine"
)

const (
	DefaultEncoding = "json" // Default variable enconding.
	TextEncoding    = "text"
)

func New(customizers ...func(*Options)) (*Worker, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	worker := Worker{
		defaultDecoder: options.Decoders[options.DefaultEncoding],
		defaultEncoder: options.Encoders[options.DefaultEncoding],
		handlers:       make(map[string]Handler),
		options:        options,
	}

	return &worker, nil
}

func NewOptions() Options {
	return Options{
		Decoders: map[string]Decoder{
			DefaultEncoding: jsonDecoder{},
			TextEncoding:    textDecoder{},
		},
		DefaultEncoding: DefaultEncoding,
		Encoders: map[string]Encoder{
			DefaultEncoding: jsonEncoder{},
			TextEncoding:    textEncoder{},
		},
	}
}

type Decoder interface {
	Decode(string, any) error
}

type Encoder interface {
	Encode(any) (string, error)
}

// Handler implements the logic of a task node.
// If an error is returned, the process instance ends up in state [engine.InstanceError].
type Handler func(TaskContext) error

type Options struct {
	Decoders        map[string]Decoder // Mapping between encodings and decoders.
	DefaultEncoding string             // Default encoding to use, when a variable does not specifiy an encoding.
	Encoders        map[string]Encoder // Mapping between encodings and encoders.
}

func (o Options) Validate() error {
	if _, ok := o.Decoders[o.DefaultEncoding]; !ok {
		return errors.New("default decoder is nil")
	}
	if _, ok := o.Encoders[o.DefaultEncoding]; !ok {
		return errors.New("default encoder is nil")
	}
	return nil
}

// TaskContext provides access to the node instance, a [Handler] is executed for.
type TaskContext struct {
	Task engine.TaskContext

	w   *Worker
	ctx context.Context

	outcome Variables
}

func (tc TaskContext) Context() context.Context {
	return tc.ctx
}

// Outcome returns the variables, which are written when the handler succeeds.
func (tc TaskContext) Outcome() Variables {
	return tc.outcome
}

// Variable decodes a variable, visible for the node instance.
func (tc TaskContext) Variable(name string, value any) error {
	data, ok := tc.Task.Variables[name]
	if !ok {
		return fmt.Errorf("variable %s is not defined", name)
	}

	if err := tc.w.decode(data, value); err != nil {
		return fmt.Errorf("failed to decode variable %s: %v", name, err)
	}
	return nil
}

// Worker holds task handlers and the codecs, needed to convert variables.
type Worker struct {
	defaultDecoder Decoder
	defaultEncoder Encoder
	handlers       map[string]Handler
	options        Options
}

func (w *Worker) Decoder(encoding string) Decoder {
	if encoding == "" {
		return w.defaultDecoder
	} else {
		return w.options.Decoders[encoding]
	}
}

func (w *Worker) Encoder(encoding string) Encoder {
	if encoding == "" {
		return w.defaultEncoder
	} else {
		return w.options.Encoders[encoding]
	}
}

// Execute executes the handler, registered under the given name.
func (w *Worker) Execute(ctx context.Context, name string, task engine.TaskContext) (map[string]*engine.Data, error) {
	handler, ok := w.handlers[name]
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s", name)
	}

	tc := TaskContext{
		Task: task,

		w:   w,
		ctx: ctx,

		outcome: Variables{},
	}

	if err := handler(tc); err != nil {
		return nil, err
	}

	return w.EncodeVariables(tc.outcome)
}

func (w *Worker) Register(name string, handler Handler) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("handler name must not be empty or blank")
	}
	if handler == nil {
		return fmt.Errorf("handler %s is nil", name)
	}
	if _, ok := w.handlers[name]; ok {
		return fmt.Errorf("handler %s is already registered", name)
	}

	w.handlers[name] = handler
	return nil
}

// StartProcessInstance encodes the variables and starts a process instance.
func (w *Worker) StartProcessInstance(ctx context.Context, e engine.Engine, cmd engine.StartProcessInstanceCmd, variables Variables) (engine.ProcessInstance, error) {
	encodedVariables, err := w.EncodeVariables(variables)
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	cmd.Variables = encodedVariables
	return e.StartProcessInstance(ctx, cmd)
}

// TaskHandlers returns the registered handlers as [engine.TaskHandler], to be set as [engine.Options] TaskHandlers.
func (w *Worker) TaskHandlers() map[string]engine.TaskHandler {
	taskHandlers := make(map[string]engine.TaskHandler, len(w.handlers))
	for name := range w.handlers {
		taskHandlers[name] = func(ctx context.Context, task engine.TaskContext) (map[string]*engine.Data, error) {
			return w.Execute(ctx, name, task)
		}
	}
	return taskHandlers
}

type jsonDecoder struct{}

func (d jsonDecoder) Decode(data string, value any) error {
	return json.Unmarshal([]byte(data), value)
}

type jsonEncoder struct{}

func (e jsonEncoder) Encode(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	} else {
		return string(b), nil
	}
}

type textDecoder struct{}

func (d textDecoder) Decode(data string, value any) error {
	s, ok := value.(*string)
	if !ok {
		return fmt.Errorf("expected *string, but got %T", value)
	}
	*s = data
	return nil
}

type textEncoder struct{}

func (e textEncoder) Encode(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(value), nil
}
