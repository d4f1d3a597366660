package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ValidateStruct runs struct-tag validation (required fields, numeric
// ranges) over the config tree. It never inspects command or path safety
// — that remains the SSH validator's sole authority.
func ValidateStruct(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
