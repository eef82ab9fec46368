package intent

import "context"

// Chain runs the rules first and consults the fallback only when no rule matched.
type Chain struct {
	Rules    *RuleClassifier
	Fallback Classifier
}

func (c Chain) Classify(ctx context.Context, text string) Result {
	rules := c.Rules
	if rules == nil {
		rules = NewRuleClassifier()
	}
	if res, ok := rules.Match(text); ok {
		return res
	}
	if c.Fallback == nil {
		return defaultResult(text, 0.5)
	}
	return c.Fallback.Classify(ctx, text)
}
