package wellknown

import (
	"fmt"
	"os"

	"github.com/stealthrocket/lower/bound"
	"gopkg.in/yaml.v3"
)

// Profile describes a target runtime by the well-known members it lacks.
//
// A profile file looks like:
//
//	name: legacy
//	exclude:
//	  - ExceptionDispatchInfo.Capture
//	  - Monitor.Enter(ref bool)
type Profile struct {
	// Name is informational.
	Name string `yaml:"name"`

	// Exclude lists the members the runtime does not provide, by the names
	// printed by ID.String.
	Exclude []string `yaml:"exclude,omitempty"`

	missing [numIDs]bool
}

// Full returns the profile of a runtime providing every well-known member.
func Full() *Profile { return &Profile{Name: "full"} }

// Without returns a profile lacking the given members.
func Without(ids ...ID) *Profile {
	p := &Profile{Name: "custom"}
	for _, id := range ids {
		p.Exclude = append(p.Exclude, id.String())
		p.missing[id] = true
	}
	return p
}

// Member implements Members.
func (p *Profile) Member(id ID) (*bound.Method, bool) {
	if id < 0 || id >= numIDs || p.missing[id] {
		return nil, false
	}
	return methods[id], true
}

// LoadProfile reads and parses a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}
	return ParseProfile(data, path)
}

// ParseProfile parses profile content from bytes.
// The path argument is used only for error messages.
func ParseProfile(data []byte, path string) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, name := range p.Exclude {
		id, ok := ParseID(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown member %q", path, name)
		}
		p.missing[id] = true
	}
	return &p, nil
}
