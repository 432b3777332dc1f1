// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

// Package validator wraps go-playground/validator with custom validations
// for commerce resources and a stable field-error format for API responses.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator validates structs and single values.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator backed by the shared validator instance.
// Custom validations are registered exactly once.
func New() *Validator {
	once.Do(func() {
		instance = validator.New()

		// Report field names from json tags so API error messages match
		// the wire format, not Go struct fields.
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		instance.RegisterValidation("shop_domain", validateShopDomain)
		instance.RegisterValidation("action_type", validateActionType)
		instance.RegisterValidation("hexstring", validateHexString)
		instance.RegisterValidation("port", validatePort)
	})
	return &Validator{v: instance}
}

// Validate validates a struct using its validate tags.
func (val *Validator) Validate(s any) error {
	return val.v.Struct(s)
}

// ValidateVar validates a single value against a tag expression.
func (val *Validator) ValidateVar(value any, tag string) error {
	return val.v.Var(value, tag)
}

// ValidationErrors converts a validation error into a field -> message map.
// Non-validation errors land under the "_error" key.
func (val *Validator) ValidationErrors(err error) map[string]string {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_error": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = formatValidationError(fe)
	}
	return out
}

// ============================================================================
// Custom validations
// ============================================================================

// shopDomainRegex matches hostnames like "my-shop.myshopify.com" or
// "store.example.co.uk". No scheme, no path, no port.
var shopDomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

func validateShopDomain(fl validator.FieldLevel) bool {
	return shopDomainRegex.MatchString(strings.ToLower(fl.Field().String()))
}

// actionTypes are the operation kinds a command plan may contain.
var actionTypes = map[string]bool{
	"get_products":       true,
	"update_products":    true,
	"apply_discount":     true,
	"update_inventory":   true,
	"update_seo":         true,
	"conditional_update": true,
}

func validateActionType(fl validator.FieldLevel) bool {
	return actionTypes[fl.Field().String()]
}

var hexRegex = regexp.MustCompile(`^[0-9a-fA-F]+$`)

func validateHexString(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && hexRegex.MatchString(s)
}

func validatePort(fl validator.FieldLevel) bool {
	port := fl.Field().Int()
	return port >= 1 && port <= 65535
}

// ============================================================================
// Error formatting
// ============================================================================

// formatValidationError renders one field error as a short human message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "shop_domain":
		return "must be a valid shop domain"
	case "action_type":
		return "must be a supported action type"
	case "hexstring":
		return "must be a hex string"
	case "port":
		return "must be a valid port (1-65535)"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ============================================================================
// Package-level convenience
// ============================================================================

// Validate validates a struct with the shared instance.
func Validate(s any) error {
	return New().Validate(s)
}

// ValidateVar validates a single value with the shared instance.
func ValidateVar(value any, tag string) error {
	return New().ValidateVar(value, tag)
}

// GetValidationErrors converts an error into a field -> message map.
func GetValidationErrors(err error) map[string]string {
	return New().ValidationErrors(err)
}
