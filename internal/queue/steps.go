package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Step is one named unit of work carrying an opaque payload token.
type Step struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// Steps is an ordered mapping of step name to payload. Position is execution
// order. It serializes as a JSON object whose key order matches the slice.
type Steps []Step

// Head returns the next step to execute.
func (s Steps) Head() (Step, bool) {
	if len(s) == 0 {
		return Step{}, false
	}
	return s[0], true
}

// Pop returns the head step and the remaining steps.
func (s Steps) Pop() (Step, Steps) {
	if len(s) == 0 {
		return Step{}, nil
	}
	rest := make(Steps, len(s)-1)
	copy(rest, s[1:])
	return s[0], rest
}

// Names lists step names in execution order.
func (s Steps) Names() []string {
	names := make([]string, len(s))
	for i, step := range s {
		names[i] = step.Name
	}
	return names
}

// Clone copies the slice.
func (s Steps) Clone() Steps {
	if s == nil {
		return nil
	}
	out := make(Steps, len(s))
	copy(out, s)
	return out
}

// Validate rejects blank or duplicate step names.
func (s Steps) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, step := range s {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			return fmt.Errorf("%w: step %d has an empty name", ErrInvalidJob, i+1)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidJob, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// MarshalJSON encodes the steps as an object preserving order.
func (s Steps) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, step := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(step.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(step.Payload)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping keys in document order. Non-string
// values are kept as their raw JSON text.
func (s *Steps) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("steps: expected JSON object, got %v", tok)
	}

	out := Steps{}
	seen := map[string]struct{}{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("steps: expected string key, got %v", keyTok)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidJob, key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("steps: decode %q: %w", key, err)
		}
		payload := string(raw)
		if len(raw) > 0 && raw[0] == '"' {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("steps: decode %q: %w", key, err)
			}
		}
		out = append(out, Step{Name: key, Payload: payload})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
