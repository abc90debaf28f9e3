package internal

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/gclaussn/go-procengine/engine"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	RegexpVariableName = regexp.MustCompile("^[a-zA-Z_][a-zA-Z0-9_-]*$")

	validate = newValidate()
)

func newValidate() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0] // e.g. `json:"userId,omitempty"` -> userId
		if name == "-" {
			return f.Name
		}
		return name
	})

	validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		if v == "" {
			return true
		}
		return gronx.IsValid(v)
	})
	validate.RegisterValidation("iso8601_duration", func(fl validator.FieldLevel) bool {
		_, err := engine.NewISO8601Duration(fl.Field().String())
		return err == nil
	})
	validate.RegisterValidation("variable_name", func(fl validator.FieldLevel) bool {
		return RegexpVariableName.MatchString(fl.Field().String())
	})

	return validate
}

// validateCmd validates a command. If the command is invalid, an error of type [engine.ErrorValidation] with a cause per invalid field is returned.
func validateCmd(title string, cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return engine.Error{Type: engine.ErrorBug, Title: title, Detail: err.Error()}
	}

	causes := make([]engine.ErrorCause, len(validationErrors))
	for i, fieldError := range validationErrors {
		causes[i] = engine.ErrorCause{
			Pointer: fieldPointer(fieldError.Namespace()),
			Type:    fieldError.Tag(),
			Detail:  fieldErrorDetail(fieldError),
		}
	}

	return engine.Error{
		Type:   engine.ErrorValidation,
		Title:  title,
		Detail: "invalid command",
		Causes: causes,
	}
}

// fieldPointer converts a namespace like `SetProcessVariablesCmd.variables[a]` into a pointer like `/variables/a`.
func fieldPointer(namespace string) string {
	var sb strings.Builder

	_, path, ok := strings.Cut(namespace, ".")
	if !ok {
		return "/"
	}

	sb.WriteRune('/')
	for _, r := range path {
		switch r {
		case '.', '[':
			sb.WriteRune('/')
		case ']':
			continue
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func fieldErrorDetail(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fieldError.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fieldError.Param())
	case "max":
		return fmt.Sprintf("exceeds a maximum of %s", fieldError.Param())
	case "min":
		return fmt.Sprintf("must have a minimum of %s", fieldError.Param())
	case "required", "required_without":
		return "is required"
	// custom validation
	case "cron", "iso8601_duration":
		return fmt.Sprintf("value %v is invalid", fieldError.Value())
	case "variable_name":
		return fmt.Sprintf("must match regex %s", RegexpVariableName)
	default:
		return "is invalid"
	}
}

// logValidation logs the causes of a validation error. Other errors are ignored.
func logValidation(logger *zap.Logger, err error) {
	var engineErr engine.Error
	if !errors.As(err, &engineErr) || engineErr.Type != engine.ErrorValidation {
		return
	}

	fields := make([]zap.Field, 0, len(engineErr.Causes)+1)
	fields = append(fields, zap.String("title", engineErr.Title))
	for _, cause := range engineErr.Causes {
		fields = append(fields, zap.String(cause.Pointer, cause.Detail))
	}

	logger.Debug("validation failed", fields...)
}
