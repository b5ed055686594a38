package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"deadline-planner/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("sortable_id", func(fl validator.FieldLevel) bool {
		return model.ValidID(fl.Field().String())
	})
	_ = v.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return model.Status(fl.Field().String()).Valid()
	})
	return v
}

// validateStruct converts the first validator failure into a ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldError(verrs[0])
	}
	return err
}

func fieldError(fe validator.FieldError) *BusinessError {
	field := fe.Field()
	// dive errors look like category_ids[2]
	if i := strings.IndexByte(field, '['); i > 0 && fe.Tag() == "sortable_id" {
		field = field[:i]
	}
	return NewValidationError(field, reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		if fe.Param() == "1" {
			return "must not be empty"
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "sortable_id":
		return fmt.Sprintf("%v is not a valid identifier", fe.Value())
	case "hexcolor":
		return "must be a #RRGGBB color"
	case "len":
		return fmt.Sprintf("must be %s characters long", fe.Param())
	case "task_status":
		return fmt.Sprintf("unknown status %v", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
