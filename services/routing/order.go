package routing

import "strings"

// ResolveOrder returns the provider names to try, in order. A non-empty
// preferred provider is moved to the front (or prepended when it is not part
// of the default order). Names are lower-cased and de-duplicated
func ResolveOrder(defaultOrder []string, preferred string) []string {
	order := make([]string, 0, len(defaultOrder)+1)
	seen := make(map[string]struct{}, len(defaultOrder)+1)

	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}

	add(preferred)
	for _, name := range defaultOrder {
		add(name)
	}
	return order
}
