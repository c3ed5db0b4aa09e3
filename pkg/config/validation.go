package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Metadata.BlockSize%512 != 0 {
		return fmt.Errorf("metadata.block_size: %d is not a multiple of 512", cfg.Metadata.BlockSize)
	}

	if cfg.Metadata.CapacityBytes != 0 && cfg.Metadata.CapacityBytes < 4*cfg.Metadata.BlockSize {
		return fmt.Errorf("metadata.capacity_bytes: %d cannot hold the header and SR records", cfg.Metadata.CapacityBytes)
	}

	if cfg.Metrics.Textfile != "" && !cfg.Metrics.Enabled {
		return fmt.Errorf("metrics.textfile is set but metrics are disabled")
	}

	return nil
}

// validateBackend runs struct tag validation on a decoded backend config.
func validateBackend(name string, cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%s: %w", name, formatValidationError(err))
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
