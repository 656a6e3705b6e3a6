package config

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is matched by every configuration error.
var ErrInvalid = errors.New("config: invalid configuration")

// Error is a configuration error. A model must not be constructed from a
// config that produced one.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Unwrap lets callers use errors.Is(err, ErrInvalid).
func (e *Error) Unwrap() error {
	return ErrInvalid
}

// configValidate is shared by all Validate calls. Field names in messages
// are the YAML keys.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New(validator.WithRequiredStructEnabled())
	configValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := configValidate.RegisterValidation("finite", isFinite); err != nil {
		panic(err)
	}
	configValidate.RegisterStructValidation(validateGridCapacity, Config{})
}

// isFinite rejects NaN and ±Inf, which every range tag would otherwise let
// through on one side.
func isFinite(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateGridCapacity checks that every settlement can get its own cell.
func validateGridCapacity(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Width <= 0 || c.Height <= 0 {
		return
	}
	if c.StartingSettlements > c.Width*c.Height {
		sl.ReportError(c.StartingSettlements, "starting_settlements", "StartingSettlements", "fitsgrid", fmt.Sprintf("%d", c.Width*c.Height))
	}
}

// Validate checks every parameter range. Returns *Error on failure.
func (c Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Problems: []string{err.Error()}}
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Problems = append(out.Problems, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be >= %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "finite":
		return fmt.Sprintf("%s must be a finite number (got %v)", fe.Field(), fe.Value())
	case "fitsgrid":
		return fmt.Sprintf("%s must not exceed the %s grid cells (got %v)", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value())
	}
}
