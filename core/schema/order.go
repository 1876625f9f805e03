package schema

// SynchronizationOrder returns entity names ordered so that referenced
// entities come first. Self references are ignored and ties keep declaration
// order. Remaining cycles are broken by declaration order as well.
func (i *Info) SynchronizationOrder() []string {
	position := make(map[string]int, len(i.Entities))
	for idx, e := range i.Entities {
		position[e.Name] = idx
	}

	// pending[x] counts not-yet-emitted entities x depends on.
	pending := make(map[string]int, len(i.Entities))
	dependents := make(map[string][]string, len(i.Entities))
	for _, e := range i.Entities {
		for _, t := range e.ReferencedTypes() {
			if t == e.Name {
				continue
			}
			pending[e.Name]++
			dependents[t] = append(dependents[t], e.Name)
		}
	}

	emitted := make(map[string]bool, len(i.Entities))
	order := make([]string, 0, len(i.Entities))
	for len(order) < len(i.Entities) {
		next := ""
		for _, e := range i.Entities {
			if emitted[e.Name] || pending[e.Name] > 0 {
				continue
			}
			next = e.Name
			break
		}
		if next == "" {
			// cycle: take the earliest declared entity still waiting
			for _, e := range i.Entities {
				if !emitted[e.Name] {
					next = e.Name
					break
				}
			}
		}
		emitted[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return order
}

// Sort orders the given entity names by SynchronizationOrder. Unknown names
// are dropped.
func (i *Info) Sort(names []string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []string
	for _, n := range i.SynchronizationOrder() {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}
