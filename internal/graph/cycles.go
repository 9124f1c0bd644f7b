package graph

// findCycle walks the graph depth-first in name order and returns the first
// cycle found as a closed path (first element repeated at the end), or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.deps))
	var stack []string
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		stack = append(stack, node)
		for _, dep := range g.deps[node] {
			switch color[dep] {
			case white:
				if dfs(dep) {
					return true
				}
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append(append([]string(nil), stack[i:]...), dep)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
		return false
	}

	for _, name := range g.names() {
		if color[name] == white && dfs(name) {
			return cycle
		}
	}
	return nil
}
