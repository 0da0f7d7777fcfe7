package service

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

const dateLayout = "2006-01-02"

// invalidPayload converts validator output into a VALIDATION_ERROR naming each failing field.
func invalidPayload(err error, message string) *appErrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[snakeCase(fe.Field())] = "failed " + fe.Tag() + " check"
	}
	return appErrors.Invalid(message, fields)
}

func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseDate reads a YYYY-MM-DD date as midnight UTC.
func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, appErrors.Invalid("invalid date", map[string]string{field: "must be YYYY-MM-DD"})
	}
	return t, nil
}

// ParseDate exposes date parsing to the transport layer.
func ParseDate(field, raw string) (time.Time, error) {
	return parseDate(field, raw)
}
