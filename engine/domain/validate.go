package domain

import "fmt"

// RequiredFields must carry a value for a result to be accepted by the
// rate-maintenance workflow.
var RequiredFields = []string{"ex_date", "pay_date", "asset_id"}

// NumericFields must coerce to a float when present.
var NumericFields = []string{"income_rate", "tax_rate", "franked_pct", "unfranked_pct"}

// DateFields must already hold a date value when present. Validation runs
// after extraction's own coercion and does not re-parse strings.
var DateFields = []string{"ex_date", "pay_date", "pub_date"}

// Validate checks a result for required-field presence and type
// conformance. All violations are accumulated so one call reports the
// complete error set; the error list is data, never an error return.
func Validate(res Result) (bool, []string) {
	var errs []string

	for _, code := range RequiredFields {
		f, ok := res[code]
		if !ok || f.Value.IsAbsent() {
			errs = append(errs, fmt.Sprintf("missing required field: %s", code))
		}
	}

	for _, code := range NumericFields {
		f, ok := res[code]
		if !ok || f.Value.IsAbsent() {
			continue
		}
		if _, ok := f.Value.Float(); !ok {
			errs = append(errs, fmt.Sprintf("invalid numeric value for %s", code))
		}
	}

	for _, code := range DateFields {
		f, ok := res[code]
		if !ok || f.Value.IsAbsent() {
			continue
		}
		if f.Value.Kind != KindDate {
			errs = append(errs, fmt.Sprintf("invalid date format for %s", code))
		}
	}

	return len(errs) == 0, errs
}
