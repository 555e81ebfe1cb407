package lower

import "github.com/stealthrocket/lower/bound"

// awaitAnalysis records which exception handlers of a body contain awaits.
type awaitAnalysis struct {
	// regions maps each try statement whose finally block awaits to the set
	// of labels defined in its try block and catch clauses. Jumps from inside
	// the region to any other label have to be routed through the finally
	// block by the handler rewriter.
	regions map[*bound.Try]map[*bound.Label]struct{}

	// catches with an await in their body or filter.
	bodyAwaits   map[*bound.Catch]struct{}
	filterAwaits map[*bound.Catch]struct{}
}

func analyzeAwaits(body *bound.Block) *awaitAnalysis {
	a := &awaitAnalyzer{
		result: &awaitAnalysis{
			regions:      map[*bound.Try]map[*bound.Label]struct{}{},
			bodyAwaits:   map[*bound.Catch]struct{}{},
			filterAwaits: map[*bound.Catch]struct{}{},
		},
		labels: map[*bound.Label]struct{}{},
	}
	a.visit(body)
	return a.result
}

// finallyAwaits reports whether the finally block of s contains an await.
func (a *awaitAnalysis) finallyAwaits(s *bound.Try) bool {
	_, ok := a.regions[s]
	return ok
}

// rewritesCatches reports whether some catch clause of s has to be moved
// out of the exception handler.
func (a *awaitAnalysis) rewritesCatches(s *bound.Try) bool {
	for _, c := range s.Catches {
		if a.bodyAwait(c) || a.filterAwait(c) {
			return true
		}
	}
	return false
}

func (a *awaitAnalysis) bodyAwait(c *bound.Catch) bool {
	_, ok := a.bodyAwaits[c]
	return ok
}

func (a *awaitAnalysis) filterAwait(c *bound.Catch) bool {
	_, ok := a.filterAwaits[c]
	return ok
}

type awaitAnalyzer struct {
	result *awaitAnalysis

	// labels defined so far in the innermost enclosing region.
	labels map[*bound.Label]struct{}
	// seenAwait is set when an await was found since it was last cleared.
	seenAwait bool
}

func (a *awaitAnalyzer) visit(n bound.Node) {
	bound.Inspect(n, func(node bound.Node) bool {
		switch node := node.(type) {
		case *bound.Await:
			a.seenAwait = true
		case *bound.LabelStmt:
			a.labels[node.Label] = struct{}{}
		case *bound.While:
			a.define(node.Break, node.Continue)
		case *bound.For:
			a.define(node.Break, node.Continue)
		case *bound.Try:
			a.try(node)
			return false
		case *bound.Lambda:
			a.lambda(node)
			return false
		}
		return true
	})
}

func (a *awaitAnalyzer) define(labels ...*bound.Label) {
	for _, l := range labels {
		if l != nil {
			a.labels[l] = struct{}{}
		}
	}
}

func (a *awaitAnalyzer) try(s *bound.Try) {
	parentLabels, parentSeen := a.labels, a.seenAwait
	a.labels, a.seenAwait = map[*bound.Label]struct{}{}, false

	a.visit(s.Body)
	for _, c := range s.Catches {
		seen := a.seenAwait
		if c.Filter != nil {
			a.seenAwait = false
			a.visit(c.Filter)
			if a.seenAwait {
				a.result.filterAwaits[c] = struct{}{}
				seen = true
			}
		}
		a.seenAwait = false
		a.visit(c.Body)
		if a.seenAwait {
			a.result.bodyAwaits[c] = struct{}{}
			seen = true
		}
		a.seenAwait = seen
	}
	regionLabels, regionSeen := a.labels, a.seenAwait

	if s.Finally == nil {
		a.labels = union(parentLabels, regionLabels)
		a.seenAwait = parentSeen || regionSeen
		return
	}

	// The finally block is not part of the region: it runs after the branch
	// out of the region has been recorded.
	a.labels, a.seenAwait = map[*bound.Label]struct{}{}, false
	a.visit(s.Finally)
	finallyLabels, finallySeen := a.labels, a.seenAwait

	if finallySeen {
		a.result.regions[s] = regionLabels
		// The finally block is rewritten in the enclosing region, so its
		// labels are local to that region and not to this one.
		a.labels = union(parentLabels, finallyLabels)
	} else {
		a.labels = union(union(parentLabels, regionLabels), finallyLabels)
	}
	a.seenAwait = parentSeen || regionSeen || finallySeen
}

// lambda analyzes the body of a lambda on its own: its labels and awaits do
// not belong to the enclosing method.
func (a *awaitAnalyzer) lambda(l *bound.Lambda) {
	labels, seen := a.labels, a.seenAwait
	a.labels, a.seenAwait = map[*bound.Label]struct{}{}, false
	a.visit(l.Body)
	a.labels, a.seenAwait = labels, seen
}

func union(dst, src map[*bound.Label]struct{}) map[*bound.Label]struct{} {
	for l := range src {
		dst[l] = struct{}{}
	}
	return dst
}
