package envfile

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// Entry is a single variable or secret desired in an environment.
type Entry struct {
	Name   string
	Value  string
	Secret bool
}

// Environment holds the desired entries for one named environment.
// Entries are sorted by name at load time.
type Environment struct {
	Name    string
	Entries []Entry
}

// File is the desired state parsed from an environments file.
type File struct {
	Repository   string
	Environments []Environment
}

// ParseError wraps a TOML syntax or decoding failure.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// rawEnvironment is the TOML shape of one environment table.
type rawEnvironment struct {
	Variables map[string]string `toml:"variables"`
	Secrets   map[string]string `toml:"secrets"`
}

// Load reads an environments file. Each top-level table is an environment
// with optional variables and secrets sub-tables; the optional top-level
// repository key names the target repository as owner/name.
//
//	repository = "octo/widgets"
//
//	[production.variables]
//	API_URL = "https://api.example.com"
//
//	[production.secrets]
//	DEPLOY_KEY = "..."
//
// Environments and their entries come back sorted by name so downstream
// plans and output are reproducible.
func Load(path string) (*File, error) {
	raw := map[string]toml.Primitive{}
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	f := &File{}
	if prim, ok := raw["repository"]; ok {
		if err := md.PrimitiveDecode(prim, &f.Repository); err != nil {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("repository: %w", err)}
		}
		delete(raw, "repository")
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var re rawEnvironment
		if err := md.PrimitiveDecode(raw[name], &re); err != nil {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("environment %s: %w", name, err)}
		}

		env := Environment{Name: name}
		for k, v := range re.Variables {
			env.Entries = append(env.Entries, Entry{Name: k, Value: v})
		}
		for k, v := range re.Secrets {
			env.Entries = append(env.Entries, Entry{Name: k, Value: v, Secret: true})
		}
		sort.Slice(env.Entries, func(i, j int) bool {
			return env.Entries[i].Name < env.Entries[j].Name
		})

		f.Environments = append(f.Environments, env)
	}

	return f, nil
}

// Environment returns the named environment from the file, if present.
func (f *File) Environment(name string) (Environment, bool) {
	for _, env := range f.Environments {
		if env.Name == name {
			return env, true
		}
	}
	return Environment{}, false
}
