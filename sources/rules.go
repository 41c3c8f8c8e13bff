package sources

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rule extracts one field from a selection. Rules are written as
// "selector" (text), "selector@attr" (attribute) or "selector@html" (inner HTML).
type Rule struct {
	Selector string
	Attr     string
}

// ParseRule splits "selector@attr".
func ParseRule(s string) Rule {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "@"); i > 0 {
		return Rule{Selector: strings.TrimSpace(s[:i]), Attr: strings.TrimSpace(s[i+1:])}
	}
	return Rule{Selector: s}
}

// Apply returns the rule's value on the first matching node, or "".
func (r Rule) Apply(sel *goquery.Selection) string {
	node := sel
	if r.Selector != "" && r.Selector != "." {
		node = sel.Find(r.Selector)
	}
	node = node.First()
	if node.Length() == 0 {
		return ""
	}
	switch r.Attr {
	case "":
		return collapseSpace(node.Text())
	case "html":
		h, err := node.Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(h)
	default:
		v, _ := node.Attr(r.Attr)
		return strings.TrimSpace(v)
	}
}

// RuleTable is an ordered fallback chain: the first non-empty value wins.
type RuleTable []Rule

// NewRuleTable parses rules, falling back to defaults when rules is empty.
func NewRuleTable(rules []string, defaults ...string) RuleTable {
	if len(rules) == 0 {
		rules = defaults
	}
	out := make(RuleTable, 0, len(rules))
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, ParseRule(r))
		}
	}
	return out
}

// First applies rules in order and returns the first non-empty value.
func (t RuleTable) First(sel *goquery.Selection) string {
	for _, r := range t {
		if v := r.Apply(sel); v != "" {
			return v
		}
	}
	return ""
}

// firstKey returns the first non-empty value among keys of a JSON object.
func firstKey(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
