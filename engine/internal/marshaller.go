package internal

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/vmihailenco/msgpack/v5"
)

// snapshot data formats, written as first byte of the snapshot data
const (
	formatCbor    byte = 1
	formatMsgpack byte = 2
)

type processInstanceData struct {
	Id                   string `json:"id"`
	ParentId             string `json:"parentId,omitempty"`
	ParentNodeInstanceId string `json:"parentNodeInstanceId,omitempty"`
	RootId               string `json:"rootId,omitempty"`

	ProcessId      string `json:"processId"`
	ProcessVersion string `json:"processVersion"`

	BusinessKey    string                       `json:"businessKey,omitempty"`
	Correlation    map[string]string            `json:"correlation,omitempty"`
	CorrelationKey string                       `json:"correlationKey,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
	EndedAt        *time.Time                   `json:"endedAt,omitempty"`
	Error          *engine.ProcessInstanceError `json:"error,omitempty"`
	ReferenceId    string                       `json:"referenceId,omitempty"`
	State          engine.InstanceState         `json:"state"`
	UpdatedAt      time.Time                    `json:"updatedAt"`

	Variables     []variableData     `json:"variables,omitempty"`
	NodeInstances []nodeInstanceData `json:"nodeInstances,omitempty"`
	Pending       []tokenData        `json:"pending,omitempty"`
}

type nodeInstanceData struct {
	Id        string                   `json:"id"`
	NodeId    string                   `json:"nodeId"`
	CreatedAt time.Time                `json:"createdAt"`
	State     engine.NodeInstanceState `json:"state"`

	Variables []variableData `json:"variables,omitempty"`

	Arrivals        map[string]int `json:"arrivals,omitempty"`
	ChildInstanceId string         `json:"childInstanceId,omitempty"`
	Timer           *timerInstance `json:"timer,omitempty"`
	UserTaskId      string         `json:"userTaskId,omitempty"`
}

type tokenData struct {
	NodeId       string `json:"nodeId"`
	ConnectionId string `json:"connectionId,omitempty"`
}

type variableData struct {
	Name string      `json:"name"`
	Data engine.Data `json:"data"`
}

func newMarshaller(encoding engine.SnapshotEncoding, encryption engine.Encryption) (*marshaller, error) {
	encMode, err := cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoding mode: %v", err)
	}

	var format byte
	switch encoding {
	case engine.SnapshotEncodingCbor:
		format = formatCbor
	case engine.SnapshotEncodingMsgpack:
		format = formatMsgpack
	default:
		return nil, fmt.Errorf("unsupported snapshot encoding %d", encoding)
	}

	return &marshaller{cborEncMode: encMode, encryption: encryption, format: format}, nil
}

// marshaller writes and reads the data of process instance and user task snapshots.
//
// The format of written data is determined by the snapshot encoding. Data of all formats can be read, which allows a change of the snapshot encoding.
type marshaller struct {
	cborEncMode cbor.EncMode
	encryption  engine.Encryption
	format      byte
}

func (m *marshaller) encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(m.format)

	switch m.format {
	case formatCbor:
		if err := m.cborEncMode.NewEncoder(&buf).Encode(v); err != nil {
			return nil, err
		}
	case formatMsgpack:
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func (m *marshaller) decode(b []byte, v any) error {
	if len(b) == 0 {
		return errors.New("snapshot data is empty")
	}

	switch b[0] {
	case formatCbor:
		return cbor.Unmarshal(b[1:], v)
	case formatMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(b[1:]))
		dec.SetCustomStructTag("json")
		return dec.Decode(v)
	default:
		return fmt.Errorf("unsupported snapshot data format %d", b[0])
	}
}

// writeProcessInstance captures the full execution state of a process instance.
// Values of sensitive process variables are encrypted.
func (m *marshaller) writeProcessInstance(pi *processInstance) ([]byte, error) {
	data := processInstanceData{
		Id:                   pi.id,
		ParentId:             pi.parentId,
		ParentNodeInstanceId: pi.parentNodeInstanceId,
		RootId:               pi.rootId,

		ProcessId:      pi.process.Id,
		ProcessVersion: pi.process.Version,

		BusinessKey:    pi.businessKey,
		Correlation:    pi.correlation,
		CorrelationKey: pi.correlationKey,
		CreatedAt:      pi.createdAt,
		EndedAt:        pi.endedAt,
		Error:          pi.err,
		ReferenceId:    pi.referenceId,
		State:          pi.state,
		UpdatedAt:      pi.updatedAt,
	}

	variables, err := m.writeVariables(pi.variables, pi.process)
	if err != nil {
		return nil, err
	}
	data.Variables = variables

	for _, ni := range pi.nodeInstances {
		localVariables, err := m.writeVariables(ni.variables, nil)
		if err != nil {
			return nil, err
		}

		data.NodeInstances = append(data.NodeInstances, nodeInstanceData{
			Id:        ni.id,
			NodeId:    ni.node.Id,
			CreatedAt: ni.createdAt,
			State:     ni.state,

			Variables: localVariables,

			Arrivals:        ni.arrivals,
			ChildInstanceId: ni.childInstanceId,
			Timer:           ni.timer,
			UserTaskId:      ni.userTaskId,
		})
	}

	for _, t := range pi.pending {
		td := tokenData{NodeId: t.node.Id}
		if t.connection != nil {
			td.ConnectionId = t.connection.String()
		}
		data.Pending = append(data.Pending, td)
	}

	b, err := m.encode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to write process instance %s: %v", pi.id, err)
	}
	return b, nil
}

func (m *marshaller) writeVariables(scope *variableScope, process *model.Process) ([]variableData, error) {
	variables := make([]variableData, 0, len(scope.names))
	for _, name := range scope.names {
		data := scope.values[name]

		if process != nil {
			if variable := process.VariableByName(name); variable != nil && variable.HasTag(model.TagSensitive) {
				encryptedData, err := m.encryption.EncryptData(data)
				if err != nil {
					return nil, fmt.Errorf("failed to encrypt variable %s: %v", name, err)
				}
				data = encryptedData
			}
		}

		variables = append(variables, variableData{Name: name, Data: data})
	}
	return variables, nil
}

// readProcessInstanceData reads the process, a process instance belongs to, without restoring the process instance.
func (m *marshaller) readProcessInstanceData(b []byte) (processInstanceData, error) {
	var data processInstanceData
	if err := m.decode(b, &data); err != nil {
		return data, fmt.Errorf("failed to read process instance: %v", err)
	}
	return data, nil
}

// readProcessInstance restores a process instance and attaches it to its process definition.
func (m *marshaller) readProcessInstance(b []byte, process *model.Process) (*processInstance, error) {
	data, err := m.readProcessInstanceData(b)
	if err != nil {
		return nil, err
	}

	if process.Id != data.ProcessId || process.Version != data.ProcessVersion {
		return nil, fmt.Errorf("process instance %s belongs to process %s:%s, but got %s", data.Id, data.ProcessId, data.ProcessVersion, process)
	}

	pi := processInstance{
		id:                   data.Id,
		parentId:             data.ParentId,
		parentNodeInstanceId: data.ParentNodeInstanceId,
		rootId:               data.RootId,

		process: process,

		businessKey:    data.BusinessKey,
		correlation:    data.Correlation,
		correlationKey: data.CorrelationKey,
		createdAt:      data.CreatedAt.UTC(),
		endedAt:        utcTime(data.EndedAt),
		err:            data.Error,
		referenceId:    data.ReferenceId,
		state:          data.State,
		updatedAt:      data.UpdatedAt.UTC(),
	}

	if pi.variables, err = m.readVariables(data.Id, data.Variables); err != nil {
		return nil, err
	}

	for _, nid := range data.NodeInstances {
		node := process.NodeById(nid.NodeId)
		if node == nil {
			return nil, fmt.Errorf("process %s has no node %s", process, nid.NodeId)
		}

		ni := nodeInstance{
			id:        nid.Id,
			node:      node,
			createdAt: nid.CreatedAt.UTC(),
			state:     nid.State,

			arrivals:        nid.Arrivals,
			childInstanceId: nid.ChildInstanceId,
			timer:           nid.Timer,
			userTaskId:      nid.UserTaskId,
		}

		if ni.timer != nil {
			ni.timer.ActivatedAt = ni.timer.ActivatedAt.UTC()
			ni.timer.LastTriggeredAt = utcTime(ni.timer.LastTriggeredAt)
		}

		if ni.variables, err = m.readVariables(nid.Id, nid.Variables); err != nil {
			return nil, err
		}

		pi.nodeInstances = append(pi.nodeInstances, &ni)
	}

	for _, td := range data.Pending {
		node := process.NodeById(td.NodeId)
		if node == nil {
			return nil, fmt.Errorf("process %s has no node %s", process, td.NodeId)
		}

		t := token{node: node}
		for _, connection := range node.Incoming {
			if connection.String() == td.ConnectionId {
				t.connection = connection
				break
			}
		}
		pi.pending = append(pi.pending, t)
	}

	return &pi, nil
}

func (m *marshaller) readVariables(scopeId string, variables []variableData) (*variableScope, error) {
	scope := newVariableScope(scopeId)
	for _, variable := range variables {
		data, err := m.encryption.DecryptData(variable.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt variable %s: %v", variable.Name, err)
		}
		scope.put(variable.Name, data)
	}
	return scope, nil
}

func (m *marshaller) writeUserTask(userTask *engine.UserTask) ([]byte, error) {
	b, err := m.encode(userTask)
	if err != nil {
		return nil, fmt.Errorf("failed to write user task %s: %v", userTask.Id, err)
	}
	return b, nil
}

func (m *marshaller) readUserTask(b []byte) (*engine.UserTask, error) {
	var userTask engine.UserTask
	if err := m.decode(b, &userTask); err != nil {
		return nil, fmt.Errorf("failed to read user task: %v", err)
	}

	userTask.CreatedAt = userTask.CreatedAt.UTC()
	userTask.UpdatedAt = userTask.UpdatedAt.UTC()
	return &userTask, nil
}

// utcTime restores an optional time in UTC, since msgpack decodes times in the local time zone.
func utcTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
