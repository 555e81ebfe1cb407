package lower

import "github.com/stealthrocket/lower/bound"

// findAwaits marks nodes in a tree that are an *bound.Await, or lead to
// one. Lambdas are crossed: a lambda whose body awaits is marked, and so are
// its ancestors, so that passes reach the lambda and lower its body too.
func findAwaits(tree bound.Node) map[bound.Node]struct{} {
	mayAwait := map[bound.Node]struct{}{}
	var stack []bound.Node
	bound.Inspect(tree, func(node bound.Node) bool {
		if node != nil {
			stack = append(stack, node)

			if _, ok := node.(*bound.Await); ok {
				// Mark this node, and all nodes that lead to it.
				for i := len(stack) - 1; i >= 0; i-- {
					n := stack[i]
					if _, ok := mayAwait[n]; ok {
						break
					}
					mayAwait[n] = struct{}{}
				}
			}
		} else {
			stack = stack[:len(stack)-1]
		}
		return true
	})
	return mayAwait
}

// containsAwait reports whether evaluating n may suspend, that is whether
// n contains an await outside of any nested lambda.
func containsAwait(n bound.Node) bool {
	found := false
	bound.Inspect(n, func(node bound.Node) bool {
		switch node.(type) {
		case *bound.Await:
			found = true
		case *bound.Lambda:
			return node == n
		}
		return !found
	})
	return found
}

// anyAwait reports whether n contains an await, including in lambdas.
func anyAwait(n bound.Node) bool {
	found := false
	bound.Inspect(n, func(node bound.Node) bool {
		if _, ok := node.(*bound.Await); ok {
			found = true
		}
		return !found
	})
	return found
}
