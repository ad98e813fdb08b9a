package application

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validation messages. The HTTP layer translates them for display.
const (
	msgRequired              = "is required"
	msgInvalidEmail          = "email is invalid"
	msgTooLong               = "is too long"
	msgInvalidValue          = "is invalid"
	msgMustBePositive        = "must be positive"
	msgUnknownGroup          = "group does not exist"
	msgUnknownModule         = "module does not exist"
	msgInactiveModule        = "module is not active"
	msgInvalidDate           = "date is invalid"
	msgInvalidTime           = "time is invalid"
	msgNoSlots               = "at least one slot is required"
	msgTooManySlots          = "too many slots selected"
	msgParticipantRange      = "participant count must be between"
	msgBoundsIncompatible    = "selected modules have incompatible participant limits"
	msgDuplicateParticipant  = "participant is listed more than once"
	msgFilenameInvalid       = "filename is invalid"
	msgExtensionNotAllowed   = "file type is not allowed"
	msgFileTooLarge          = "file is too large"
	msgUnknownGlobalDocument = "global document does not exist"
	msgDepartmentInUse       = "department is still referenced by groups"
	msgAlreadyExists         = "already exists"
	msgSessionUnavailable    = "session is not open for a waitlist"
	msgInvalidStatus         = "status is invalid"
	msgDuplicateDocument     = "an identical document already exists"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// validateStruct runs struct tag validation and reports failures keyed by
// prefix plus the field's JSON name.
func validateStruct(prefix string, value any) *ValidationError {
	vErr := &ValidationError{}
	err := structValidator().Struct(value)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add(strings.TrimSuffix(prefix, "."), msgInvalidValue)
		return vErr
	}
	for _, fe := range fieldErrs {
		key := fe.Namespace()
		if i := strings.IndexByte(key, '.'); i >= 0 {
			key = key[i+1:]
		}
		vErr.add(prefix+key, messageForTag(fe.Tag()))
	}
	return vErr
}

func messageForTag(tag string) string {
	switch tag {
	case "required":
		return msgRequired
	case "email":
		return msgInvalidEmail
	case "max":
		return msgTooLong
	case "gt", "gte", "min":
		return msgMustBePositive
	default:
		return msgInvalidValue
	}
}
