// Package lower rewrites the structured control flow of bound method bodies
// into forms that a state-machine or code generator can consume directly.
//
// Lowering proceeds in stages:
//
//   - Local rewriting expands lock statements, loops, conditional accesses,
//     compound assignments and interpolated strings into primitive forms.
//   - In async bodies, a first spilling pass lifts every await out of the
//     expression it is nested in, so that awaits only ever appear as a whole
//     statement or as the whole right-hand side of a local assignment.
//     Catch filters are left untouched.
//   - The handler rewriter moves awaits out of finally blocks, catch bodies
//     and catch filters by turning them into ordinary code dispatched on
//     pending-exception, pending-branch and pending-catch locals.
//   - A second spilling pass handles the code the handler rewriter moved out
//     of catch filters.
//
// Lowered bodies contain no Lock, While, For, ConditionalAccess,
// CompoundAssign or Interpolation nodes, and no await inside a catch body,
// catch filter or finally block.
package lower

import (
	"context"
	"runtime"

	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/diag"
	"github.com/stealthrocket/lower/wellknown"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Option configures the lowering.
type Option func(*config)

type config struct {
	members     wellknown.Members
	diags       *diag.Bag
	logger      *zap.Logger
	concurrency int
}

// WithMembers selects the runtime members available to lowered code. By
// default every well-known member is available.
func WithMembers(m wellknown.Members) Option {
	return func(c *config) { c.members = m }
}

// WithDiagnostics collects the diagnostics reported while lowering into
// bag. By default they are discarded.
func WithDiagnostics(bag *diag.Bag) Option {
	return func(c *config) { c.diags = bag }
}

// WithLogger sets the logger for progress and debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithConcurrency bounds the number of methods Compile lowers in parallel.
// It defaults to GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(c *config) { c.concurrency = n }
}

func newConfig(options []Option) *config {
	c := &config{concurrency: runtime.GOMAXPROCS(0)}
	for _, option := range options {
		option(c)
	}
	if c.members == nil {
		c.members = wellknown.Full()
	}
	if c.diags == nil {
		c.diags = new(diag.Bag)
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// Method lowers the body of m and returns a copy of m with the lowered
// body. The input tree is not modified.
//
// The returned error is a *diag.InvariantError when the body has a shape
// the passes cannot handle. Problems with the program itself, such as a
// missing runtime member, are reported as diagnostics instead.
func Method(m *bound.Method, options ...Option) (*bound.Method, error) {
	return lowerMethod(m, newConfig(options))
}

// Result is the outcome of lowering one method.
type Result struct {
	Method *bound.Method
	Err    error
}

// Compile lowers methods in parallel. Results are returned in the order of
// the input, and a failure lowering one method does not prevent the others
// from being lowered. The returned error is only set when ctx is canceled.
func Compile(ctx context.Context, methods []*bound.Method, options ...Option) ([]Result, error) {
	c := newConfig(options)
	results := make([]Result, len(methods))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	c.logger.Info("lowering methods",
		zap.Int("count", len(methods)),
		zap.Int("concurrency", c.concurrency))

	for i, m := range methods {
		i, m := i, m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lowered, err := lowerMethod(m, c)
			if err != nil {
				c.logger.Error("lowering failed", zap.String("method", m.Name), zap.Error(err))
				lowered = m
			}
			results[i] = Result{Method: lowered, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// lowering holds the state shared by the passes applied to one method.
type lowering struct {
	method  *bound.Method
	f       *bound.Factory
	members wellknown.Members
	diags   *diag.Bag
	log     *zap.Logger
}

func lowerMethod(m *bound.Method, c *config) (lowered *bound.Method, err error) {
	if m.Body == nil {
		return m, nil
	}
	l := &lowering{
		method:  m,
		f:       &bound.Factory{Pos: m.Pos},
		members: c.members,
		diags:   c.diags,
		log:     c.logger.With(zap.String("method", m.Name)),
	}

	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*diag.InvariantError)
			if !ok {
				panic(r)
			}
			ie.Method = m.Name
			lowered, err = nil, ie
		}
	}()

	body := m.Body

	l.log.Debug("rewriting local constructs")
	body = l.rewriteLocal(body)

	if anyAwait(body) {
		l.log.Debug("spilling awaits")
		body = l.spill(body, bound.Spill, true)

		l.log.Debug("rewriting exception handlers")
		body = l.rewriteHandlers(body, m.Result)

		l.log.Debug("spilling awaits moved out of handlers")
		body = l.spill(body, bound.AwaitSpill, false)
	}

	verify(body, m.Async)

	out := *m
	out.Body = body
	return &out, nil
}

// member returns an optional runtime member.
func (l *lowering) member(id wellknown.ID) (*bound.Method, bool) {
	return l.members.Member(id)
}

// require returns a runtime member, reporting a diagnostic at pos when the
// target runtime does not provide it.
func (l *lowering) require(id wellknown.ID, pos bound.Pos) (*bound.Method, bool) {
	m, ok := l.members.Member(id)
	if !ok {
		l.diags.Errorf(l.method.Name, pos, diag.MissingMember,
			"missing compiler required member '%s'", id)
	}
	return m, ok
}
