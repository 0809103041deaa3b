package core

import (
	"encoding/json"
	"fmt"
)

// ActionRequest is the structured action an agent emits for one turn.
// Concrete variants implement the unexported isAction marker, so the set is
// closed: RequestFinding, EmitDiagnosis, EmitTreatment, Interpret and Abstain.
type ActionRequest interface {
	isAction()
	// Type returns the tag used when the action is persisted.
	Type() ActionType
}

// ActionType is the persisted tag of an ActionRequest variant.
type ActionType string

const (
	ActionRequestFinding ActionType = "request_finding"
	ActionEmitDiagnosis  ActionType = "emit_diagnosis"
	ActionEmitTreatment  ActionType = "emit_treatment"
	ActionInterpret      ActionType = "interpret"
	ActionAbstain        ActionType = "abstain"
)

// RequestFinding asks the case environment for information of one kind.
type RequestFinding struct {
	Thought    string      `json:"thought,omitempty"`
	Kind       FindingKind `json:"kind"`
	Parameters []string    `json:"parameters,omitempty"`
}

func (RequestFinding) isAction() {}

// Type implements ActionRequest.
func (RequestFinding) Type() ActionType { return ActionRequestFinding }

// EmitDiagnosis carries the final (ranked) diagnosis and, usually, the
// treatment plan given alongside it.
type EmitDiagnosis struct {
	Thought   string   `json:"thought,omitempty"`
	Text      string   `json:"text"`
	Ranked    []string `json:"ranked,omitempty"`
	Treatment string   `json:"treatment,omitempty"`
}

func (EmitDiagnosis) isAction() {}

// Type implements ActionRequest.
func (EmitDiagnosis) Type() ActionType { return ActionEmitDiagnosis }

// Primary returns the top ranked diagnosis or the raw text.
func (d EmitDiagnosis) Primary() string {
	if len(d.Ranked) > 0 {
		return d.Ranked[0]
	}
	return d.Text
}

// EmitTreatment carries a treatment plan without a diagnosis.
type EmitTreatment struct {
	Thought string `json:"thought,omitempty"`
	Text    string `json:"text"`
}

func (EmitTreatment) isAction() {}

// Type implements ActionRequest.
func (EmitTreatment) Type() ActionType { return ActionEmitTreatment }

// LabInterpretation is one interpreted lab value.
type LabInterpretation struct {
	Test           string `json:"test"`
	Value          string `json:"value,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
}

// Interpret records an interpretation of previously returned lab values.
type Interpret struct {
	Thought string              `json:"thought,omitempty"`
	Labs    []LabInterpretation `json:"labs"`
}

func (Interpret) isAction() {}

// Type implements ActionRequest.
func (Interpret) Type() ActionType { return ActionInterpret }

// Abstain yields the turn without requesting anything. In multi-agent mode the
// information gatherer abstains to signal that gathering is done.
type Abstain struct {
	Thought string `json:"thought,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (Abstain) isAction() {}

// Type implements ActionRequest.
func (Abstain) Type() ActionType { return ActionAbstain }

// actionEnvelope is the tagged JSON form of an ActionRequest.
type actionEnvelope struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalAction encodes an ActionRequest as a tagged JSON object.
func MarshalAction(a ActionRequest) ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}

	return json.Marshal(actionEnvelope{Type: a.Type(), Payload: payload})
}

// UnmarshalAction decodes the tagged JSON produced by MarshalAction.
func UnmarshalAction(data []byte) (ActionRequest, error) {
	if string(data) == "null" || len(data) == 0 {
		return nil, nil
	}

	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var (
		a   ActionRequest
		err error
	)

	switch env.Type {
	case ActionRequestFinding:
		var v RequestFinding
		err = json.Unmarshal(env.Payload, &v)
		a = v
	case ActionEmitDiagnosis:
		var v EmitDiagnosis
		err = json.Unmarshal(env.Payload, &v)
		a = v
	case ActionEmitTreatment:
		var v EmitTreatment
		err = json.Unmarshal(env.Payload, &v)
		a = v
	case ActionInterpret:
		var v Interpret
		err = json.Unmarshal(env.Payload, &v)
		a = v
	case ActionAbstain:
		var v Abstain
		err = json.Unmarshal(env.Payload, &v)
		a = v
	default:
		return nil, fmt.Errorf("unknown action type %q", env.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}

	return a, nil
}
