package extract

import (
	"strings"

	"github.com/ratedesk/disclosure-engine/engine/domain"
)

// Rule derives or defaults fields after raw extraction. Rules are pure:
// they return a new result and never mutate their input.
type Rule func(domain.Result) domain.Result

// ruleTable keys rules by template name. Unknown templates pass through
// unchanged.
var ruleTable = map[string]Rule{
	"asx_mit_notice": defaultTaxRate,
	"vanguard_au":    vanguardTotal,
}

// ApplyRules runs the template's rule, if any, over the result.
func ApplyRules(res domain.Result, template string) domain.Result {
	rule, ok := ruleTable[template]
	if !ok {
		return res
	}
	return rule(cloneResult(res))
}

func cloneResult(res domain.Result) domain.Result {
	out := make(domain.Result, len(res))
	for k, v := range res {
		out[k] = v
	}
	return out
}

// defaultTaxRate fills in the standard MIT withholding rate when the
// notice did not state one.
func defaultTaxRate(res domain.Result) domain.Result {
	if f, ok := res["tax_rate"]; ok && !f.Value.IsAbsent() {
		return res
	}
	res["tax_rate"] = domain.Field{
		Value:   domain.NumberValue(0.3),
		Comment: "Default MIT withholding tax rate",
	}
	return res
}

// vanguardTotalComponents are summed into the TOTAL field. A component
// that is absent or not numerically coercible is skipped.
var vanguardTotalComponents = []string{"DOM_INC", "FOR_INC", "DOM_DID"}

func vanguardTotal(res domain.Result) domain.Result {
	var sum float64
	for _, code := range vanguardTotalComponents {
		f, ok := res[code]
		if !ok {
			continue
		}
		v, ok := f.Value.Float()
		if !ok {
			continue
		}
		sum += v
	}
	if sum > 0 {
		res["TOTAL"] = domain.Field{
			Value:   domain.NumberValue(sum),
			Comment: "Sum of " + strings.Join(vanguardTotalComponents, " + "),
		}
	}
	return res
}
