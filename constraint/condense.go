package constraint

// scc computes the strongly connected components of g using Tarjan's
// algorithm, grounded on golang.org/x/tools/go/callgraph/vta's own scc
// function, adapted from a map-keyed graph to our dense int-indexed one.
// The result maps each node to its SCC id; ids are assigned in reverse
// topological order, so for ids x < y, y's SCC precedes x's in the
// topological order (a predecessor's id is always >= its successors').
//
// follow filters which edges participate in SCC membership: condensation
// uses regular edges only (see propagate.go), since a cast edge closing
// a cycle with regular edges would otherwise hide the narrowing a cast
// is supposed to apply.
func scc(g *Graph, follow func(Edge) bool) (nodeToSCC []int, numSCC int) {
	n := g.NumNodes()
	index := make([]int, n)
	lowLink := make([]int, n)
	onStack := make([]bool, n)
	visited := make([]bool, n)
	nodeToSCC = make([]int, n)
	for i := range nodeToSCC {
		nodeToSCC[i] = -1
	}

	var stack []int
	nextIndex := 0
	sccID := 0

	var doSCC func(v int)
	doSCC = func(v int) {
		index[v] = nextIndex
		lowLink[v] = nextIndex
		nextIndex++
		visited[v] = true
		onStack[v] = true
		stack = append(stack, v)

		for _, e := range g.Successors(v) {
			if !follow(e) {
				continue
			}
			w := e.To
			if !visited[w] {
				doSCC(w)
				if lowLink[w] < lowLink[v] {
					lowLink[v] = lowLink[w]
				}
			} else if onStack[w] {
				if index[w] < lowLink[v] {
					lowLink[v] = index[w]
				}
			}
		}

		if lowLink[v] == index[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				nodeToSCC[w] = sccID
				if w == v {
					break
				}
			}
			sccID++
		}
	}

	for v := 0; v < n; v++ {
		if !visited[v] {
			doSCC(v)
		}
	}

	return nodeToSCC, sccID
}
