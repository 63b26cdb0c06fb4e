package action

import "strings"

// Batch is one ordered list of actions from a single reply plus the placeholder bindings
// accumulated while it runs. It is not safe for concurrent use and is never persisted.
type Batch struct {
	Actions  []ProposedAction
	bindings map[string]string
}

func NewBatch(actions []ProposedAction) *Batch {
	return &Batch{Actions: actions, bindings: make(map[string]string)}
}

// Binding returns the id bound to token, if any.
func (b *Batch) Binding(token string) (string, bool) {
	id, ok := b.bindings[token]
	return id, ok
}

// bind points token at id. A later create of the same kind replaces the earlier id.
func (b *Batch) bind(token, id string) {
	if token == "" || id == "" {
		return
	}
	b.bindings[token] = id
}

// resolve returns a copy of data with every placeholder replaced inside every string,
// including strings nested in maps and arrays.
func (b *Batch) resolve(data map[string]any) (map[string]any, error) {
	out, err := b.resolveValue(data)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func (b *Batch) resolveValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return b.resolveString(t)
	case map[string]any:
		if t == nil {
			return map[string]any(nil), nil
		}
		out := make(map[string]any, len(t))
		for k, item := range t {
			r, err := b.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := b.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (b *Batch) resolveString(s string) (string, error) {
	if !strings.Contains(s, "$NEW_") {
		return s, nil
	}
	for _, token := range placeholders {
		if !strings.Contains(s, token) {
			continue
		}
		id, ok := b.bindings[token]
		if !ok {
			return "", &PlaceholderError{Token: token}
		}
		s = strings.ReplaceAll(s, token, id)
	}
	return s, nil
}
