package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/bound/boundyaml"
	"github.com/stealthrocket/lower/diag"
	"github.com/stealthrocket/lower/interp"
	"github.com/stealthrocket/lower/lower"
	"github.com/stealthrocket/lower/wellknown"
	"go.uber.org/zap"
)

const usage = `
lowerc lowers structured control flow in bound programs.

USAGE:
  lowerc [OPTIONS] PATH

OPTIONS:
  -profile FILE  Target runtime profile listing missing members
  -run           Run parameterless methods before and after lowering
  -j N           Number of methods lowered in parallel
  -v             Log the progress of the passes
  -h, --help     Show this help information
`

var errFailed = errors.New("lowering failed")

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		profilePath string
		execute     bool
		concurrency int
		verbose     bool
	)
	flag.StringVar(&profilePath, "profile", "", "")
	flag.BoolVar(&execute, "run", false, "")
	flag.IntVar(&concurrency, "j", runtime.GOMAXPROCS(0), "")
	flag.BoolVar(&verbose, "v", false, "")
	flag.Usage = func() { println(usage[1:]) }
	flag.Parse()

	path := flag.Arg(0)
	if path == "" {
		flag.Usage()
		return errors.New("missing program path")
	}

	log := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck
		log = l
	}
	lower.SetLogger(log)

	var members wellknown.Members = wellknown.Full()
	if profilePath != "" {
		p, err := wellknown.LoadProfile(profilePath)
		if err != nil {
			return err
		}
		log.Debug("loaded profile", zap.String("name", p.Name), zap.Strings("exclude", p.Exclude))
		members = p
	}

	prog, err := boundyaml.Load(path,
		interp.NullReference,
		interp.InvalidCast,
		interp.IndexOutOfRange,
		interp.SynchronizationLock,
		interp.ArgumentError,
		interp.DivideByZero,
		interp.FormatError,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var diags diag.Bag
	results, err := lower.Compile(ctx, prog.Methods,
		lower.WithMembers(members),
		lower.WithDiagnostics(&diags),
		lower.WithLogger(log),
		lower.WithConcurrency(concurrency))
	if err != nil {
		return err
	}

	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	for _, d := range diags.All() {
		printDiagnostic(os.Stderr, d, color)
	}

	failed := diags.HasErrors()
	for i, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, r.Err)
			failed = true
			continue
		}
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(bound.FormatMethod(r.Method))
	}
	if failed {
		return errFailed
	}

	if execute {
		for i, m := range prog.Methods {
			if len(m.Params) > 0 || prog.This[m] != nil {
				continue
			}
			if err := compare(os.Stdout, prog, m, results[i].Method); err != nil {
				return err
			}
		}
	}
	return nil
}

// compare runs the original and lowered versions of a method and prints
// their effects, reporting any difference between them.
func compare(w io.Writer, prog *boundyaml.Program, original, lowered *bound.Method) error {
	want, err := trace(prog, original)
	if err != nil {
		return fmt.Errorf("running %s: %w", original.Name, err)
	}
	got, err := trace(prog, lowered)
	if err != nil {
		return fmt.Errorf("running lowered %s: %w", lowered.Name, err)
	}
	fmt.Fprintf(w, "\n== %s\n%s", original.Name, got)
	if got != want {
		fmt.Fprintf(w, "-- before lowering:\n%s", want)
		return fmt.Errorf("%s: lowering changed the behavior of the method", original.Name)
	}
	return nil
}

func trace(prog *boundyaml.Program, m *bound.Method) (string, error) {
	var t interp.Trace
	r, err := interp.Run(m, t.Config(prog.Externs))
	if err != nil {
		return "", err
	}
	t.Printf("%s", interp.Format(r))
	return t.String(), nil
}

func printDiagnostic(w io.Writer, d diag.Diagnostic, color bool) {
	if !color {
		fmt.Fprintln(w, d)
		return
	}
	severity := "\x1b[31m"
	if d.Severity == diag.Warning {
		severity = "\x1b[33m"
	}
	if d.Method != "" {
		fmt.Fprintf(w, "%s:", d.Method)
	}
	fmt.Fprintf(w, "%s: %s%s\x1b[0m %s: %s\n", d.Pos, severity, d.Severity, d.Code, d.Message)
}
