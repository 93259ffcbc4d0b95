// Package validation wraps go-playground/validator with a shared instance that
// reports fields by their serialized (json or toml) names.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed field.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

func (e FieldError) Error() string { return e.Message }

// Errors is the set of fields that failed validation.
type Errors []FieldError

func (es Errors) Error() string {
	if len(es) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(serializedName)
	})
	return validate
}

// serializedName prefers the json tag, then the toml tag, then the Go name.
func serializedName(f reflect.StructField) string {
	for _, key := range []string{"json", "toml"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// Struct validates s. It returns nil or an Errors value.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, len(verrs))
	for i, fe := range verrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return out
}

var messages = map[string]string{
	"required":      "%s is required",
	"oneof":         "%s must be one of: %s",
	"min":           "%s must be at least %s",
	"max":           "%s must be at most %s",
	"gte":           "%s must be greater than or equal to %s",
	"lte":           "%s must be less than or equal to %s",
	"gt":            "%s must be greater than %s",
	"hostname_port": "%s must be a host:port address",
}

func translate(fe validator.FieldError) string {
	tmpl, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	if strings.Count(tmpl, "%s") == 2 {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf(tmpl, fe.Field())
}
