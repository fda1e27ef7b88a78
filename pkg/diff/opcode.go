package diff

import (
	"encoding/json"
	"fmt"
)

// Opcode is one edit step. Equal and delete cover lhs[Start:End]; insert
// adds Text (for node text) or Labels (for child sequences) at Start.
type Opcode struct {
	Kind   string
	Start  int
	End    int
	Text   string
	Labels []string
}

// MarshalJSON encodes the opcode as a tuple: ["equal", start, end],
// ["delete", start, end] or ["insert", start, inserted].
func (op Opcode) MarshalJSON() ([]byte, error) {
	switch op.Kind {
	case KindEqual, KindDelete:
		return json.Marshal([]any{op.Kind, op.Start, op.End})
	case KindInsert:
		if op.Labels != nil {
			return json.Marshal([]any{op.Kind, op.Start, op.Labels})
		}
		return json.Marshal([]any{op.Kind, op.Start, op.Text})
	}
	return nil, fmt.Errorf("unknown opcode kind %q", op.Kind)
}

// UnmarshalJSON decodes the tuple form written by MarshalJSON.
func (op *Opcode) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 3 {
		return fmt.Errorf("opcode has %d elements, want 3", len(tuple))
	}
	decoded := Opcode{}
	if err := json.Unmarshal(tuple[0], &decoded.Kind); err != nil {
		return fmt.Errorf("opcode kind: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &decoded.Start); err != nil {
		return fmt.Errorf("opcode start: %w", err)
	}
	switch decoded.Kind {
	case KindEqual, KindDelete:
		if err := json.Unmarshal(tuple[2], &decoded.End); err != nil {
			return fmt.Errorf("opcode end: %w", err)
		}
	case KindInsert:
		if len(tuple[2]) > 0 && tuple[2][0] == '[' {
			if err := json.Unmarshal(tuple[2], &decoded.Labels); err != nil {
				return fmt.Errorf("opcode labels: %w", err)
			}
		} else if err := json.Unmarshal(tuple[2], &decoded.Text); err != nil {
			return fmt.Errorf("opcode text: %w", err)
		}
	default:
		return fmt.Errorf("unknown opcode kind %q", decoded.Kind)
	}
	*op = decoded
	return nil
}
