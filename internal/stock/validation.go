package stock

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists the item fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrInvalidItem.Error(), strings.Join(parts, "; "))
}

// Unwrap allows errors.Is(err, ErrInvalidItem).
func (e *ValidationError) Unwrap() error { return ErrInvalidItem }

func fieldMessages(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "is required"
		case "max":
			out[fe.Field()] = "must be at most " + fe.Param() + " characters"
		case "gte":
			out[fe.Field()] = "must not be negative"
		case "ltefield":
			out[fe.Field()] = "must not exceed " + fe.Param()
		default:
			out[fe.Field()] = "is invalid"
		}
	}
	return out
}
