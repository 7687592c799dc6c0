package api

import (
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"tradejournal/internal/apperrors"
	"tradejournal/internal/constants"
)

var (
	requestValidator = newRequestValidator()
	namePolicy       = bluemonday.StrictPolicy()
	angleBrackets    = strings.NewReplacer("<", "", ">", "")

	errPayloadTooLarge = apperrors.New(http.StatusRequestEntityTooLarge, constants.ErrCodePayloadTooLarge, "Request body too large")
	errInvalidJSON     = apperrors.ErrInvalidRequest.WithMessage("Invalid JSON body")
)

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("password", validatePassword); err != nil {
		panic(err)
	}

	return v
}

// validatePassword requires 8 to 128 characters with at least one upper-case
// letter, one lower-case letter and one digit.
func validatePassword(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if n := len([]rune(value)); n < 8 || n > 128 {
		return false
	}

	var upper, lower, digit bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func decodeAndValidate(body io.Reader, dst any) error {
	return decodeBody(body, dst, false)
}

// decodeOptionalAndValidate accepts a body without any JSON value as an empty
// request. Content-Length is not consulted since chunked and HTTP/2 requests
// report it as unknown.
func decodeOptionalAndValidate(body io.Reader, dst any) error {
	return decodeBody(body, dst, true)
}

func decodeBody(body io.Reader, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return errPayloadTooLarge
		}
		return errInvalidJSON
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errInvalidJSON
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return apperrors.Validation(validationDetails(validationErrors))
		}
		return apperrors.ErrInvalidRequest.WithMessage("Invalid request payload")
	}

	return nil
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validationDetails(errs validator.ValidationErrors) []FieldError {
	details := make([]FieldError, 0, len(errs))
	for _, fe := range errs {
		details = append(details, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return details
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Invalid email format"
	case "password":
		return "Password must be 8-128 characters and contain at least one uppercase letter, one lowercase letter, and one number"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "uuid":
		return "Invalid " + field + " format"
	default:
		return "Invalid " + field
	}
}

// validateUUIDParam checks a path parameter such as :userId.
func validateUUIDParam(name, value string) error {
	if err := requestValidator.Var(value, "required,uuid"); err != nil {
		return apperrors.Validation([]FieldError{{Field: name, Message: "Invalid " + name + " format"}})
	}
	return nil
}

// sanitizeName strips markup from a display name and undoes the entity
// escaping bluemonday applies to plain text. Angle brackets that were
// smuggled in as entities are removed. Names that end up empty are dropped.
func sanitizeName(name *string) *string {
	if name == nil {
		return nil
	}
	clean := strings.TrimSpace(angleBrackets.Replace(html.UnescapeString(namePolicy.Sanitize(*name))))
	if clean == "" {
		return nil
	}
	return &clean
}
