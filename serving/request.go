package serving

import (
	"encoding/json"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/YuminosukeSato/penguinml/penguin"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// PredictRequest is the body of POST /predict. Pointer fields let a
// missing field be told apart from a zero value.
type PredictRequest struct {
	BillLengthMM    *float64 `json:"bill_length_mm" validate:"required"`
	BillDepthMM     *float64 `json:"bill_depth_mm" validate:"required"`
	FlipperLengthMM *float64 `json:"flipper_length_mm" validate:"required"`
	BodyMassG       *float64 `json:"body_mass_g" validate:"required"`
	Year            *int     `json:"year" validate:"required"`
	Sex             *string  `json:"sex" validate:"required,oneof=Male Female"`
	Island          *string  `json:"island" validate:"required,oneof=Biscoe Dream Torgersen"`
}

// Record converts a validated request into the domain record.
func (r *PredictRequest) Record() penguin.Record {
	return penguin.Record{
		BillLengthMM:    *r.BillLengthMM,
		BillDepthMM:     *r.BillDepthMM,
		FlipperLengthMM: *r.FlipperLengthMM,
		BodyMassG:       *r.BodyMassG,
		Year:            *r.Year,
		Sex:             penguin.Sex(*r.Sex),
		Island:          penguin.Island(*r.Island),
	}
}

// FieldError is one entry of a 422 response.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// RequestValidationError collects every problem found in a request body.
type RequestValidationError struct {
	Detail []FieldError `json:"detail"`
}

func (e *RequestValidationError) Error() string {
	parts := make([]string, len(e.Detail))
	for i, d := range e.Detail {
		parts[i] = strings.Join(d.Loc, ".") + ": " + d.Msg
	}
	return "request validation failed: " + strings.Join(parts, "; ")
}

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodePredictRequest reads and validates body. A non-nil error is always
// a *RequestValidationError.
func decodePredictRequest(body io.Reader, v *validator.Validate) (*PredictRequest, error) {
	var req PredictRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, decodeError(err)
	}

	if err := v.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		out := &RequestValidationError{}
		for _, fe := range verrs {
			out.Detail = append(out.Detail, fieldError(fe))
		}
		return nil, out
	}
	return &req, nil
}

func fieldError(fe validator.FieldError) FieldError {
	loc := []string{"body", fe.Field()}
	switch fe.Tag() {
	case "required":
		return FieldError{Loc: loc, Msg: "field required", Type: "value_error.missing"}
	case "oneof":
		permitted := strings.Fields(fe.Param())
		for i, p := range permitted {
			permitted[i] = "'" + p + "'"
		}
		return FieldError{
			Loc:  loc,
			Msg:  "value is not a valid enumeration member; permitted: " + strings.Join(permitted, ", "),
			Type: "type_error.enum",
		}
	default:
		return FieldError{Loc: loc, Msg: fe.Error(), Type: "value_error"}
	}
}

func decodeError(err error) *RequestValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		msg, typ := "value is not a valid float", "type_error.float"
		switch typeErr.Type.Kind() {
		case reflect.Int:
			msg, typ = "value is not a valid integer", "type_error.integer"
		case reflect.String:
			msg, typ = "str type expected", "type_error.str"
		}
		return &RequestValidationError{Detail: []FieldError{{
			Loc: []string{"body", typeErr.Field}, Msg: msg, Type: typ,
		}}}
	}
	return &RequestValidationError{Detail: []FieldError{{
		Loc: []string{"body"}, Msg: "invalid JSON body: " + err.Error(), Type: "value_error.jsondecode",
	}}}
}
