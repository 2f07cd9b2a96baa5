package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Config Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return lowerFirst(fld.Name)
		}
		return name
	})
	return v
}

// ValidateConfig checks a deployment config before any side effect happens.
// It returns nil or ValidationErrors listing every problem found.
//
// Rules:
//   - remote targets need a host (hostname or IP) and a fully qualified domain
//   - every product needs an internal code and a name, price >= 0
//   - internal codes are unique; duplicates are reported, never merged
//   - colours are hex colours, the gateway name is alphanumeric
func ValidateConfig(cfg DeploymentConfig) error {
	var errs ValidationErrors

	if !cfg.Mode().IsValid() {
		errs = append(errs, FieldError{Field: "mode", Message: "unknown deployment mode"})
	}
	if t, ok := cfg.Target.(*RemoteTarget); ok && t == nil {
		errs = append(errs, FieldError{Field: "server", Message: "remote target is missing"})
	}

	if remote, ok := cfg.Remote(); ok {
		errs = append(errs, structErrors("server", remote)...)
	}

	seen := make(map[string]int, len(cfg.Products))
	for i, p := range cfg.Products {
		prefix := fmt.Sprintf("products[%d]", i)
		errs = append(errs, structErrors(prefix, p)...)
		if p.InternalCode == "" {
			continue
		}
		if strings.ContainsAny(p.InternalCode, `/\`) {
			errs = append(errs, FieldError{
				Field:   prefix + ".internalCode",
				Message: "must not contain path separators",
			})
		}
		if first, dup := seen[p.InternalCode]; dup {
			errs = append(errs, FieldError{
				Field:   prefix + ".internalCode",
				Message: fmt.Sprintf("duplicate internal code %q (also used by products[%d])", p.InternalCode, first),
			})
			continue
		}
		seen[p.InternalCode] = i
	}

	errs = append(errs, structErrors("design", cfg.Design)...)
	errs = append(errs, structErrors("payment", cfg.Payment)...)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// structErrors runs struct-tag validation and converts failures to FieldErrors.
func structErrors(prefix string, s any) []FieldError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: prefix, Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace starts with the struct type name; dive paths follow it.
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if prefix != "" {
			field = prefix + "." + field
		}
		out = append(out, FieldError{
			Field:   field,
			Message: tagMessage(fe),
		})
	}
	return out
}

// ValidateStruct runs struct-tag validation on s, reporting failures as
// ValidationErrors named by JSON field path.
func ValidateStruct(s any) error {
	errs := ValidationErrors(structErrors("", s))
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "fqdn":
		return "must be a fully qualified domain name"
	case "hostname_rfc1123|ip":
		return "must be a hostname or IP address"
	case "hexcolor":
		return "must be a hex colour like #3b82f6"
	case "alphanum":
		return "must be alphanumeric"
	case "gte", "min":
		return "must be greater than or equal to " + fe.Param()
	case "max":
		return "must be less than or equal to " + fe.Param()
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
