package plan

import "fmt"

// TopoOrder returns the plan's nodes in a deterministic topological
// order via Kahn's algorithm, breaking ties by node id to keep the
// order stable across runs regardless of map iteration. Returns an
// error if the graph contains a cycle (Kahn's algorithm fails to
// consume every node).
func TopoOrder(p *Plan) ([]string, error) {
	inDegree := make(map[string]int, len(p.Nodes))
	dependents := make(map[string][]string, len(p.Nodes))

	for _, n := range p.Nodes {
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
		for _, in := range n.Inputs {
			inDegree[n.ID]++
			dependents[in] = append(dependents[in], n.ID)
		}
	}

	ready := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	sortStrings(ready)

	order := make([]string, 0, len(p.Nodes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		newlyReady := make([]string, 0)
		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sortStrings(newlyReady)
		ready = mergeSorted(ready, newlyReady)
	}

	if len(order) != len(p.Nodes) {
		return nil, fmt.Errorf("plan contains a cycle: only %d of %d nodes are reachable via topological order", len(order), len(p.Nodes))
	}
	return order, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
