package httpapi

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"voice-scheduler/internal/dialer"
)

// RegisterValidators installs the binding tags used by request structs:
//
//	e164: a dialable number per libphonenumber (replaces validator's regex-only e164)
//	cron: a recurrence pattern accepted by validCron
func RegisterValidators(validCron func(string) error) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("httpapi: unexpected binding engine")
	}
	if err := v.RegisterValidation("e164", func(fl validator.FieldLevel) bool {
		_, err := dialer.NormalizeE164(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return validCron(fl.Field().String()) == nil
	})
}

// bindingMessage turns validator output into a short client-facing message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid json"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "e164":
		return fe.Field() + " must be an E.164 phone number"
	case "cron":
		return fe.Field() + " must be a 5-field cron pattern"
	default:
		return fe.Field() + " failed " + fe.Tag() + " validation"
	}
}
