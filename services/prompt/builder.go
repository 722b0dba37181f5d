package prompt

import (
	"strconv"
	"strings"
)

// PersonalizationDirective closes every context block
const PersonalizationDirective = "Respond in a personalized and warm way."

// CallContext carries optional per-user facts for one call
type CallContext struct {
	GestationalWeek *int
	BabyAgeMonths   *int
	TopicHint       string
}

// IsEmpty reports whether no usable field is set
func (c *CallContext) IsEmpty() bool {
	return len(c.lines()) == 0
}

// lines renders the present fields in their fixed order
func (c *CallContext) lines() []string {
	if c == nil {
		return nil
	}

	var lines []string
	if c.GestationalWeek != nil && *c.GestationalWeek >= 0 {
		lines = append(lines, "Gestational week: "+strconv.Itoa(*c.GestationalWeek))
	}
	if c.BabyAgeMonths != nil && *c.BabyAgeMonths >= 0 {
		lines = append(lines, "Baby age (months): "+strconv.Itoa(*c.BabyAgeMonths))
	}
	if topic := strings.TrimSpace(c.TopicHint); topic != "" {
		lines = append(lines, "Topic: "+topic)
	}
	return lines
}

// BuildSystemInstruction appends the user context block to base. With no
// context the base instruction is returned unchanged. The output depends only
// on its inputs.
func BuildSystemInstruction(base string, cc *CallContext) string {
	lines := cc.lines()
	if len(lines) == 0 {
		return base
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nUser context:\n")
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(PersonalizationDirective)
	return sb.String()
}

// Int is a small helper for building contexts
func Int(v int) *int {
	return &v
}
