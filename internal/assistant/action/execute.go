package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"workpilot/internal/logging"
)

type Status string

const (
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
)

type ErrorKind string

const (
	ErrorPlaceholder ErrorKind = "placeholder"
	ErrorValidation  ErrorKind = "validation"
	ErrorDispatch    ErrorKind = "dispatch"
)

// Outcome reports what happened to one action, at the same index as in the batch.
type Outcome struct {
	Index     int       `json:"index"`
	Type      Type      `json:"type"`
	Status    Status    `json:"status" enum:"succeeded,failed"`
	EntityID  string    `json:"entity_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty" enum:"placeholder,validation,dispatch"`
	Err       error     `json:"-"`
}

var actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "workpilot_actions_total",
	Help: "Executed assistant actions by type and status.",
}, []string{"type", "status"})

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Executor struct {
	Boundary Boundary
	Log      *zap.Logger
}

// Execute runs every action in order, one at a time. A failed action is recorded and the
// next one still runs, so the result always has one outcome per action.
func (e Executor) Execute(ctx context.Context, batch *Batch) []Outcome {
	log := logging.OrNop(e.Log)
	outcomes := make([]Outcome, len(batch.Actions))
	for i, a := range batch.Actions {
		out := Outcome{Index: i, Type: a.Type}
		id, err := e.run(ctx, batch, a)
		if err != nil {
			out.Status = Failed
			out.Err = err
			out.Error = err.Error()
			out.ErrorKind = kindOf(err)
			log.Info("action failed", zap.Int("index", i), zap.String("type", string(a.Type)), zap.String("kind", string(out.ErrorKind)), zap.Error(err))
		} else {
			out.Status = Succeeded
			out.EntityID = id
			log.Debug("action succeeded", zap.Int("index", i), zap.String("type", string(a.Type)), zap.String("entity_id", id))
		}
		actionsTotal.WithLabelValues(string(a.Type), string(out.Status)).Inc()
		outcomes[i] = out
	}
	return outcomes
}

func (e Executor) run(ctx context.Context, batch *Batch, a ProposedAction) (string, error) {
	spec, ok := lookup(a.Type)
	if !ok {
		return "", &ValidationError{Type: a.Type, Reason: "unknown action type"}
	}
	data, err := batch.resolve(a.Data)
	if err != nil {
		return "", err
	}
	p, err := decode(spec, data)
	if err != nil {
		return "", err
	}
	id, err := p.apply(ctx, e.Boundary)
	if err != nil {
		return "", &DispatchError{Type: a.Type, Err: err}
	}
	batch.bind(spec.Binds, id)
	return id, nil
}

// decode turns the untyped payload into the type's struct and validates it.
func decode(spec Spec, data map[string]any) (payload, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, &ValidationError{Type: spec.Type, Reason: fmt.Sprintf("payload is not encodable: %v", err)}
	}
	p := spec.payload()
	if err := json.Unmarshal(raw, p); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return nil, &ValidationError{Type: spec.Type, Field: ute.Field, Reason: "has the wrong type"}
		}
		return nil, &ValidationError{Type: spec.Type, Reason: err.Error()}
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, &ValidationError{Type: spec.Type, Field: fe.Field(), Reason: reason(fe)}
		}
		return nil, &ValidationError{Type: spec.Type, Reason: err.Error()}
	}
	if c, ok := p.(checker); ok {
		if err := c.check(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "email":
		return "must be an email address"
	case "min":
		return "must not be empty"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func kindOf(err error) ErrorKind {
	var pe *PlaceholderError
	if errors.As(err, &pe) {
		return ErrorPlaceholder
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrorValidation
	}
	return ErrorDispatch
}
