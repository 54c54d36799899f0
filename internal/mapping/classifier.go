package mapping

// Classifier resolves raw process names to application labels using a
// RuleSet. Results are memoized for the lifetime of the classifier, which is
// scoped to one aggregation run: once a name has been resolved, later calls
// return the cached label even if the rule set was mutated in between.
type Classifier struct {
	Rules           *RuleSet
	DefaultCategory string

	cache map[string]string
}

func NewClassifier(rules *RuleSet, defaultCategory string) *Classifier {
	return &Classifier{
		Rules:           rules,
		DefaultCategory: defaultCategory,
		cache:           make(map[string]string),
	}
}

// Classify returns the application label for process. Unmatched names map to
// the default category; that outcome is cached too, so repeated unknown names
// cost a single lookup.
func (c *Classifier) Classify(process string) string {
	if app, ok := c.cache[process]; ok {
		return app
	}

	app := c.resolve(process)
	c.cache[process] = app
	return app
}

func (c *Classifier) resolve(process string) string {
	if app, ok := c.Rules.Exact[process]; ok {
		return app
	}
	for _, rule := range c.Rules.Patterns {
		if rule.Pattern.MatchString(process) {
			return rule.App
		}
	}
	return c.DefaultCategory
}
