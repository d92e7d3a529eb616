package syncer

import (
	"sort"

	"github.com/micahrl/envsync/internal/envfile"
)

// SecretPolicy controls how secrets are reconciled. The API never returns
// secret values, so equality against remote state cannot be observed.
type SecretPolicy string

const (
	// SecretPolicyOverwrite rewrites every locally declared secret on each
	// run, whether or not it changed.
	SecretPolicyOverwrite SecretPolicy = "overwrite"
	// SecretPolicySkip only creates secrets that are missing remotely.
	SecretPolicySkip SecretPolicy = "skip"
)

// Options configure one sync run.
type Options struct {
	// Prune enables deletion of remote entries absent from the local file.
	Prune bool
	// DryRun computes and reports plans without applying anything.
	DryRun bool
	// Only restricts the run to a single environment when non-empty.
	Only string
	// SecretPolicy defaults to SecretPolicyOverwrite when empty.
	SecretPolicy SecretPolicy
}

// Deletion identifies a remote entry to remove.
type Deletion struct {
	Name   string
	Secret bool
}

// Plan describes the operations needed to bring one environment to its
// desired state. Operations apply in order: creates, then updates, then
// deletes, each alphabetical by name.
type Plan struct {
	Env     string
	Creates []envfile.Entry
	Updates []envfile.Entry
	Deletes []Deletion
}

// Empty reports whether the plan contains no operations.
func (p *Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// ComputePlan compares desired entries against observed remote state.
// vars maps variable name -> value; secretNames holds the names of existing
// secrets. Variables and secrets live in separate remote namespaces, so a
// desired variable never shadows a remote secret of the same name.
func ComputePlan(env envfile.Environment, vars map[string]string, secretNames map[string]bool, opts Options) *Plan {
	plan := &Plan{Env: env.Name}

	desiredVars := make(map[string]bool)
	desiredSecrets := make(map[string]bool)

	for _, e := range env.Entries {
		if e.Secret {
			desiredSecrets[e.Name] = true
			if !secretNames[e.Name] {
				plan.Creates = append(plan.Creates, e)
			} else if opts.SecretPolicy != SecretPolicySkip {
				plan.Updates = append(plan.Updates, e)
			}
			continue
		}

		desiredVars[e.Name] = true
		existing, ok := vars[e.Name]
		if !ok {
			plan.Creates = append(plan.Creates, e)
		} else if existing != e.Value {
			plan.Updates = append(plan.Updates, e)
		}
	}

	if opts.Prune {
		for name := range vars {
			if !desiredVars[name] {
				plan.Deletes = append(plan.Deletes, Deletion{Name: name})
			}
		}
		for name := range secretNames {
			if !desiredSecrets[name] {
				plan.Deletes = append(plan.Deletes, Deletion{Name: name, Secret: true})
			}
		}
	}

	sort.Slice(plan.Creates, func(i, j int) bool { return plan.Creates[i].Name < plan.Creates[j].Name })
	sort.Slice(plan.Updates, func(i, j int) bool { return plan.Updates[i].Name < plan.Updates[j].Name })
	sort.Slice(plan.Deletes, func(i, j int) bool { return plan.Deletes[i].Name < plan.Deletes[j].Name })

	return plan
}
