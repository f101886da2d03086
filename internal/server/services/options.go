package services

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	validation "github.com/go-ozzo/ozzo-validation"
)

// Option tweaks a service at construction time.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return *o
}

// check runs rules against value and reports the first failure as a
// field-level ValidationError.
func check(field string, value any, rules ...validation.Rule) error {
	if err := validation.Validate(value, rules...); err != nil {
		return common.NewValidationError(field, err.Error())
	}
	return nil
}

func stringEquals(other string, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != other {
			return errors.New(message)
		}
		return nil
	}
}

func notContaining(substr string, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if strings.Contains(s, substr) {
			return errors.New(message)
		}
		return nil
	}
}
