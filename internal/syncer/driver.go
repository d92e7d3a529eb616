package syncer

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/micahrl/envsync/internal/envfile"
	"github.com/micahrl/envsync/internal/gh"
)

// Client is the part of the GitHub API the sync driver uses.
type Client interface {
	ListEnvironments(ctx context.Context) ([]string, error)
	UpsertEnvironment(ctx context.Context, env string) error
	ListVariables(ctx context.Context, env string) (map[string]string, error)
	ListSecretNames(ctx context.Context, env string) (map[string]bool, error)
	CreateVariable(ctx context.Context, env, name, value string) error
	UpdateVariable(ctx context.Context, env, name, value string) error
	DeleteVariable(ctx context.Context, env, name string) error
	PutSecret(ctx context.Context, env, name, value string) error
	DeleteSecret(ctx context.Context, env, name string) error
}

// Op names one kind of planned operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Result records the outcome of one applied operation.
type Result struct {
	Env    string
	Op     Op
	Name   string
	Secret bool
	Err    error
}

// Report accumulates the outcome of one run.
type Report struct {
	// Plans holds the computed plan for every synced environment, in order.
	Plans []*Plan
	// Results holds one entry per applied operation. Empty on dry runs.
	Results []Result
	// Skipped lists environments abandoned because of an environment-level
	// error. Their operations were not attempted.
	Skipped []string
}

// Applied returns the number of operations that succeeded.
func (r *Report) Applied() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of operations that failed.
func (r *Report) Failed() int {
	return len(r.Results) - r.Applied()
}

// Run performs one sync pass: for each desired environment, make sure it
// exists, fetch remote state, compute a plan, and apply it. Per-operation
// failures are recorded and do not stop the rest of the plan; an
// environment-level failure skips that environment and the run continues.
// Run itself returns an error only for fatal conditions: a rejected token
// or a cancelled context. Nothing is rolled back.
func Run(ctx context.Context, client Client, file *envfile.File, opts Options) (*Report, error) {
	report := &Report{}

	if opts.Only != "" {
		if _, ok := file.Environment(opts.Only); !ok {
			return report, fmt.Errorf("environment %q not found in config", opts.Only)
		}
	}

	if err := logUnmanagedEnvironments(ctx, client, file); err != nil {
		return report, err
	}

	for _, env := range file.Environments {
		if opts.Only != "" && env.Name != opts.Only {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := syncEnvironment(ctx, client, env, opts, report); err != nil {
			var authErr *gh.AuthError
			if errors.As(err, &authErr) {
				return report, err
			}
			log.WithFields(log.Fields{
				"environment": env.Name,
				"err":         err,
			}).Error("skipping environment")
			report.Skipped = append(report.Skipped, env.Name)
		}
	}

	return report, nil
}

// logUnmanagedEnvironments notes remote environments that the local file
// does not mention. They are always left untouched; prune only applies to
// entries within managed environments. A rejected token surfaces here
// before any plan is applied.
func logUnmanagedEnvironments(ctx context.Context, client Client, file *envfile.File) error {
	remote, err := client.ListEnvironments(ctx)
	if err != nil {
		var authErr *gh.AuthError
		if errors.As(err, &authErr) {
			return err
		}
		log.WithField("err", err).Warn("could not list remote environments")
		return nil
	}
	for _, name := range remote {
		if _, ok := file.Environment(name); !ok {
			log.WithField("environment", name).Debug("remote environment not in config, leaving untouched")
		}
	}
	return nil
}

// syncEnvironment brings one environment to its desired state. The returned
// error is environment-level: the environment could not be created or its
// remote state could not be read. Per-operation failures land in the report
// instead, except auth failures which come back as errors so the run can
// abort.
func syncEnvironment(ctx context.Context, client Client, env envfile.Environment, opts Options, report *Report) error {
	logger := log.WithField("environment", env.Name)

	if !opts.DryRun {
		if err := client.UpsertEnvironment(ctx, env.Name); err != nil {
			return err
		}
	}

	vars, err := client.ListVariables(ctx, env.Name)
	if err != nil {
		// A missing environment has empty state. On dry runs this happens
		// for environments that would be created by the apply.
		var nf *gh.NotFoundError
		if !errors.As(err, &nf) {
			return err
		}
		vars = map[string]string{}
	}

	secretNames, err := client.ListSecretNames(ctx, env.Name)
	if err != nil {
		var nf *gh.NotFoundError
		if !errors.As(err, &nf) {
			return err
		}
		secretNames = map[string]bool{}
	}

	plan := ComputePlan(env, vars, secretNames, opts)
	report.Plans = append(report.Plans, plan)

	logger.WithFields(log.Fields{
		"creates": len(plan.Creates),
		"updates": len(plan.Updates),
		"deletes": len(plan.Deletes),
	}).Info("computed plan")

	if opts.DryRun {
		return nil
	}

	return applyPlan(ctx, client, plan, report)
}

// applyPlan executes the plan in order, recording one result per operation.
// Only an auth failure stops the loop.
func applyPlan(ctx context.Context, client Client, plan *Plan, report *Report) error {
	for _, e := range plan.Creates {
		var err error
		if e.Secret {
			err = client.PutSecret(ctx, plan.Env, e.Name, e.Value)
		} else {
			err = client.CreateVariable(ctx, plan.Env, e.Name, e.Value)
		}
		if fatal := record(report, Result{Env: plan.Env, Op: OpCreate, Name: e.Name, Secret: e.Secret, Err: err}); fatal != nil {
			return fatal
		}
	}

	for _, e := range plan.Updates {
		var err error
		if e.Secret {
			err = client.PutSecret(ctx, plan.Env, e.Name, e.Value)
		} else {
			err = client.UpdateVariable(ctx, plan.Env, e.Name, e.Value)
		}
		if fatal := record(report, Result{Env: plan.Env, Op: OpUpdate, Name: e.Name, Secret: e.Secret, Err: err}); fatal != nil {
			return fatal
		}
	}

	for _, d := range plan.Deletes {
		var err error
		if d.Secret {
			err = client.DeleteSecret(ctx, plan.Env, d.Name)
		} else {
			err = client.DeleteVariable(ctx, plan.Env, d.Name)
		}
		if fatal := record(report, Result{Env: plan.Env, Op: OpDelete, Name: d.Name, Secret: d.Secret, Err: err}); fatal != nil {
			return fatal
		}
	}

	return nil
}

// record appends the result and returns the error back when it is fatal for
// the whole run.
func record(report *Report, res Result) error {
	report.Results = append(report.Results, res)

	fields := log.Fields{
		"environment": res.Env,
		"op":          res.Op,
		"name":        res.Name,
		"secret":      res.Secret,
	}
	if res.Err != nil {
		var authErr *gh.AuthError
		if errors.As(res.Err, &authErr) {
			return res.Err
		}
		fields["err"] = res.Err
		log.WithFields(fields).Error("operation failed")
	} else {
		log.WithFields(fields).Info("operation applied")
	}
	return nil
}
