package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/matzehuels/dataflow/pkg/errors"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

// newValidator reports fields by their toml key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "validate config")
	}
	return errors.New(errors.ErrCodeInvalidConfig, "%s", describe(verrs[0]))
}

// describe turns a field error into "cache.backend: must be one of ...".
func describe(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	field := ns

	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s: field is required", field)
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %q", field, e.Param(), e.Value())
	case "gte", "min":
		return fmt.Sprintf("%s: must be at least %s", field, e.Param())
	case "lte", "max":
		return fmt.Sprintf("%s: must not exceed %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s: %q is not a host:port address", field, e.Value())
	default:
		return fmt.Sprintf("%s: validation failed (%s)", field, e.Tag())
	}
}
