package instructions

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal encodes an instruction as a flat JSON object carrying a "type"
// discriminator.
func Marshal(ins Instruction) ([]byte, error) {
	body, err := json.Marshal(ins)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(ins.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

// Unmarshal decodes one instruction object and validates it.
func Unmarshal(data []byte) (Instruction, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode instruction: %w", err)
	}

	var ins Instruction
	switch head.Type {
	case KindTrim:
		ins = &Trim{}
	case KindCutOut:
		ins = &CutOut{}
	case KindCaptions:
		ins = &CaptionsGenerate{}
	case KindDeadspace:
		ins = &DeadspaceTrim{}
	case KindSemanticSearch:
		ins = &SemanticSearch{}
	case KindSemanticApplyCut:
		ins = &SemanticApplyCut{}
	case "":
		return nil, fmt.Errorf("instruction has no type")
	default:
		return nil, fmt.Errorf("unknown instruction type %q", head.Type)
	}

	// "type" is not a struct field; strip it so unknown fields stay visible.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	delete(fields, "type")
	body, _ := json.Marshal(fields)

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ins); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	if err := ins.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", head.Type, err)
	}
	return ins, nil
}

// UnmarshalList decodes a JSON array of instructions.
func UnmarshalList(data []byte) ([]Instruction, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode instruction list: %w", err)
	}
	out := make([]Instruction, 0, len(raw))
	for i, r := range raw {
		ins, err := Unmarshal(r)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		out = append(out, ins)
	}
	return out, nil
}

// MarshalList encodes instructions as a JSON array.
func MarshalList(list []Instruction) ([]byte, error) {
	raw := make([]json.RawMessage, len(list))
	for i, ins := range list {
		b, err := Marshal(ins)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return json.Marshal(raw)
}

// Canonical returns a key identifying what an instruction does, ignoring its
// description and empty options. Two instructions with the same key are
// duplicates.
func Canonical(ins Instruction) string {
	var c Instruction
	switch v := ins.(type) {
	case *Trim:
		cp := *v
		cp.Desc = ""
		if cp.Options.empty() {
			cp.Options = nil
		}
		c = &cp
	case *CutOut:
		cp := *v
		cp.Desc = ""
		if cp.Options != nil && !cp.Options.DryRun {
			cp.Options = nil
		}
		c = &cp
	case *CaptionsGenerate:
		cp := *v
		cp.Desc = ""
		c = &cp
	case *DeadspaceTrim:
		cp := *v
		cp.Desc = ""
		c = &cp
	case *SemanticSearch:
		cp := *v
		cp.Desc = ""
		c = &cp
	case *SemanticApplyCut:
		cp := *v
		cp.Desc = ""
		c = &cp
	}
	b, err := Marshal(c)
	if err != nil {
		return string(ins.Kind())
	}
	return string(b)
}
