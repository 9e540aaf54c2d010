// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Segment tokens are bare numbers or dash ranges, e.g. "42" or "100-200".
var segmentTokenRegex = regexp.MustCompile(`^\d+(-\d+)?$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("security_kind", validateSecurityKind)
		_ = v.RegisterValidation("legal_type", validateLegalType)
		_ = v.RegisterValidation("plan_key", validatePlanKey)
		_ = v.RegisterValidation("segment_token", validateSegmentToken)
		_ = v.RegisterValidation("country_code", validateCountryCode)
	}
}

func validateSecurityKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "common", "preferred", "registered":
		return true
	}
	return false
}

func validateLegalType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "human", "company":
		return true
	}
	return false
}

func validatePlanKey(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "startup", "professional", "enterprise":
		return true
	}
	return false
}

func validateSegmentToken(fl validator.FieldLevel) bool {
	return segmentTokenRegex.MatchString(fl.Field().String())
}

// validateCountryCode accepts ISO 3166-1 alpha-2 shape; it does not carry
// the full country table.
func validateCountryCode(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'A' && s[0] <= 'Z' && s[1] >= 'A' && s[1] <= 'Z'
}
