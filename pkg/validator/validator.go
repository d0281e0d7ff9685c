package validator

import (
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is the shared validator instance; building one per request
	// is wasteful because compiled struct caches live on the instance.
	Validate *validator.Validate
)

// providerEventTypes are the notification types accepted from the email
// provider, in its own vocabulary.
var providerEventTypes = map[string]struct{}{
	"email.delivered":  {},
	"email.opened":     {},
	"email.clicked":    {},
	"email.replied":    {},
	"email.bounced":    {},
	"email.complained": {},
}

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("provider_event", validateProviderEvent)
}

// validateProviderEvent accepts only known provider notification types.
func validateProviderEvent(fl validator.FieldLevel) bool {
	_, ok := providerEventTypes[fl.Field().String()]
	return ok
}
