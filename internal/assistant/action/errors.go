package action

import "fmt"

// PlaceholderError means an action referenced a token no earlier action had bound.
type PlaceholderError struct {
	Token string
}

func (e *PlaceholderError) Error() string {
	return fmt.Sprintf("placeholder %s used before any action created it", e.Token)
}

type ValidationError struct {
	Type   Type
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Type, e.Field, e.Reason)
}

// DispatchError wraps a failure returned by the domain boundary.
type DispatchError struct {
	Type Type
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Type, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
