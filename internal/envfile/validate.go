package envfile

import "fmt"

// ValidationError describes a single problem with the environments file.
type ValidationError struct {
	Env     string
	Name    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", e.Env, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Env, e.Name, e.Message)
}

// FileStats holds summary counts for a desired-state file.
type FileStats struct {
	NumEnvironments int
	NumVariables    int
	NumSecrets      int
}

// Stats returns entry counts across all environments.
func (f *File) Stats() FileStats {
	stats := FileStats{NumEnvironments: len(f.Environments)}
	for _, env := range f.Environments {
		for _, e := range env.Entries {
			if e.Secret {
				stats.NumSecrets++
			} else {
				stats.NumVariables++
			}
		}
	}
	return stats
}

// Validate checks all constraints on the desired state. Returns nil if valid.
// A name may not appear as both a variable and a secret in one environment,
// and names and values must be non-empty.
func (f *File) Validate() []ValidationError {
	var errs []ValidationError

	for _, env := range f.Environments {
		if env.Name == "" {
			errs = append(errs, ValidationError{Env: "(unnamed)", Message: "empty environment name"})
			continue
		}

		seen := make(map[string]bool, len(env.Entries))
		for _, e := range env.Entries {
			if e.Name == "" {
				errs = append(errs, ValidationError{Env: env.Name, Message: "empty entry name"})
				continue
			}
			if e.Value == "" {
				errs = append(errs, ValidationError{Env: env.Name, Name: e.Name, Message: "empty value"})
			}
			if seen[e.Name] {
				errs = append(errs, ValidationError{Env: env.Name, Name: e.Name, Message: "declared as both variable and secret"})
			}
			seen[e.Name] = true
		}
	}

	return errs
}
