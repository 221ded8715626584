package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aiact/compliance/internal/scoring"
)

const maxBodyBytes = 1 << 20

var errInvalidJSON = errors.New("invalid JSON body")

// requestValidate checks request structs. Field names in errors are the
// JSON names so they line up with the payload the client sent.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = requestValidate.RegisterValidation("enum", validateEnum)
}

type enum interface {
	Valid() bool
}

// validateEnum accepts values of the closed string enums in models.
func validateEnum(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().(enum)
	if !ok {
		return false
	}
	return v.Valid()
}

// decodeRequest reads a JSON body into dst and validates it. Any key listed
// in derived is rejected: those values are always computed server side.
func decodeRequest(r *http.Request, dst interface{}, derived ...string) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	if len(derived) > 0 {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return fmt.Errorf("%w: %v", errInvalidJSON, err)
		}
		verr := &scoring.ValidationError{}
		for _, field := range derived {
			checkDerived(verr, raw, field)
		}
		if err := verr.ErrOrNil(); err != nil {
			return err
		}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return scoring.NewValidationError(typeErr.Field, "must be a "+jsonKind(typeErr.Type))
		}
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}

	return validateStruct(dst)
}

// checkDerived flags field when present in raw. A path of the form
// "list[].field" is checked in every element of the list.
func checkDerived(verr *scoring.ValidationError, raw map[string]json.RawMessage, path string) {
	list, field, nested := strings.Cut(path, "[].")
	if !nested {
		if _, ok := raw[path]; ok {
			verr.Add(path, "derived field cannot be set")
		}
		return
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw[list], &items); err != nil {
		return
	}
	for i, item := range items {
		if _, ok := item[field]; ok {
			verr.Add(fmt.Sprintf("%s[%d].%s", list, i, field), "derived field cannot be set")
		}
	}
}

func validateStruct(v interface{}) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &scoring.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe), fieldMessage(fe))
	}
	return verr
}

// fieldPath drops the struct name prefix validator puts on namespaces.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "is required"
	case "enum":
		return fmt.Sprintf("unknown value %q", fmt.Sprint(fe.Value()))
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		switch fe.Kind() {
		case reflect.String:
			return "must be at least " + fe.Param() + " characters"
		case reflect.Slice:
			return "must have at least " + fe.Param() + " item(s)"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "valid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "whole number"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "list"
	default:
		return "valid value"
	}
}
