package lower_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/bound/boundyaml"
	"github.com/stealthrocket/lower/diag"
	"github.com/stealthrocket/lower/lower"
	"github.com/stealthrocket/lower/wellknown"
	"golang.org/x/tools/txtar"
)

// TestGolden lowers the programs of testdata/*.txtar and runs every method
// whose name starts with Main, before and after lowering. Both runs must
// have the effects recorded in the output file of the archive.
//
// Archives hold:
//
//	input.yaml    the program
//	output        the expected effects of each Main method
//	profile.yaml  optionally, the members of the target runtime
func TestGolden(t *testing.T) {
	paths, err := filepath.Glob("testdata/*.txtar")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no test archives")
	}

	for _, path := range paths {
		path := path
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			ar, err := txtar.ParseFile(path)
			if err != nil {
				t.Fatal(err)
			}
			files := make(map[string][]byte, len(ar.Files))
			for _, f := range ar.Files {
				files[f.Name] = f.Data
			}

			prog, err := boundyaml.Decode(files["input.yaml"], exceptions...)
			if err != nil {
				t.Fatalf("%s: %v", path, err)
			}

			var members wellknown.Members = wellknown.Full()
			if data, ok := files["profile.yaml"]; ok {
				profile, err := wellknown.ParseProfile(data, "profile.yaml")
				if err != nil {
					t.Fatal(err)
				}
				members = profile
			}

			var diags diag.Bag
			results, err := lower.Compile(context.Background(), prog.Methods,
				lower.WithMembers(members),
				lower.WithDiagnostics(&diags))
			if err != nil {
				t.Fatal(err)
			}
			for _, d := range diags.All() {
				t.Errorf("unexpected diagnostic: %s", d)
			}

			var out strings.Builder
			for i, m := range prog.Methods {
				r := results[i]
				if r.Err != nil {
					t.Fatal(r.Err)
				}
				if !strings.HasPrefix(m.Name, "Main") {
					continue
				}
				want := execute(t, prog, m)
				got := execute(t, prog, r.Method)
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("%s: lowered run differs (-original +lowered):\n%s\n%s",
						m.Name, diff, bound.FormatMethod(r.Method))
				}
				fmt.Fprintf(&out, "== %s\n%s", m.Name, got)
			}

			expect := strings.TrimSpace(string(files["output"]))
			if diff := cmp.Diff(expect, strings.TrimSpace(out.String())); diff != "" {
				t.Errorf("unexpected output (-want +got):\n%s", diff)
			}
		})
	}
}
