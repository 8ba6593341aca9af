package readiness

import (
	"fmt"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"
)

var (
	criteriaTypeTag  = "criteriatype"
	criteriaTypeText = "unknown criteria type"

	// minimum similarity for a type to be suggested
	suggestionCutoff = .6
)

// InitValidators registers the readiness validation tags. core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(criteriaTypeTag, criteriaTypeValidation)
	_ = validate.RegisterTranslation(
		criteriaTypeTag, translator,
		func(t ut.Translator) error { return t.Add(criteriaTypeTag, criteriaTypeText, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(criteriaTypeTag, fe.Field())
			if ct, ok := fe.Value().(CriteriaType); ok {
				if match := closestCriteriaType(string(ct)); match != "" {
					s = fmt.Sprintf("%s, did you mean %q?", s, match)
				}
			}
			return s
		},
	)
}

// criteriaTypeValidation checks that the field holds one of AllCriteriaTypes.
func criteriaTypeValidation(fl validator.FieldLevel) bool {
	if ct, ok := fl.Field().Interface().(CriteriaType); ok {
		return ct.IsValid()
	}
	return false
}

// closestCriteriaType returns the supported type most similar to s, if similar enough.
func closestCriteriaType(s string) CriteriaType {
	if s == "" {
		return ""
	}
	var (
		best      CriteriaType
		bestRatio float64
	)
	for _, ct := range AllCriteriaTypes {
		ratio := difflib.NewMatcher(strings.Split(s, ""), strings.Split(string(ct), "")).Ratio()
		if ratio > bestRatio {
			best, bestRatio = ct, ratio
		}
	}
	if bestRatio < suggestionCutoff {
		return ""
	}
	return best
}
