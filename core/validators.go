package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	notBlankTag  = "notblank"
	notBlankText = "this field cannot be blank"

	accountNumberTag   = "acctnum"
	accountNumberText  = "account numbers look like 3240 followed by 5 digits"
	AccountNumberRegex = regexp.MustCompile(`^3240\d{5}$`)

	mailboxTag  = "mailbox"
	mailboxText = "email addresses must contain @"

	requiredTag  = "required"
	requiredText = "this field is required"
)

// NewValidator builds a validator with English error messages and the custom tags registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	InitValidators(validate, translator)
	return validate, translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	RegisterCustomTranslation(validate, translator, notBlankTag, notBlankText)

	_ = validate.RegisterValidation(accountNumberTag, accountNumberValidation)
	RegisterCustomTranslation(validate, translator, accountNumberTag, accountNumberText)

	_ = validate.RegisterValidation(mailboxTag, mailboxValidation)
	RegisterCustomTranslation(validate, translator, mailboxTag, mailboxText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// TranslateValidationErrors turns validator errors into a *ValidationError carrying one FieldError per field.
// Errors of any other kind are returned unchanged.
func TranslateValidationErrors(err error, translator ut.Translator, cause error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	if cause == nil {
		cause = err
	}
	return NewValidationError(cause, flds...)
}

// Custom Global Validators

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func accountNumberValidation(fl validator.FieldLevel) bool {
	return AccountNumberRegex.MatchString(fl.Field().String())
}

// mailboxValidation only requires an "@".
func mailboxValidation(fl validator.FieldLevel) bool {
	return strings.Contains(fl.Field().String(), "@")
}
