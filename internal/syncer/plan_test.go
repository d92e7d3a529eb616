package syncer

import (
	"testing"

	"github.com/micahrl/envsync/internal/envfile"
)

func env(name string, entries ...envfile.Entry) envfile.Environment {
	return envfile.Environment{Name: name, Entries: entries}
}

func TestComputePlan_NoChanges(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "API_URL", Value: "https://api.example.com"},
	)
	vars := map[string]string{"API_URL": "https://api.example.com"}

	plan := ComputePlan(desired, vars, nil, Options{})
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %+v", plan)
	}
}

func TestComputePlan_NewEntries(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "LOG_LEVEL", Value: "info"},
		envfile.Entry{Name: "API_URL", Value: "https://api.example.com"},
	)

	plan := ComputePlan(desired, map[string]string{}, nil, Options{})
	if len(plan.Creates) != 2 {
		t.Fatalf("expected 2 creates, got %d", len(plan.Creates))
	}
	if plan.Creates[0].Name != "API_URL" || plan.Creates[1].Name != "LOG_LEVEL" {
		t.Errorf("expected creates sorted by name, got %v", plan.Creates)
	}
	if len(plan.Updates) != 0 || len(plan.Deletes) != 0 {
		t.Errorf("expected no updates or deletes, got %+v", plan)
	}
}

func TestComputePlan_UpdateChangedValue(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "API_URL", Value: "https://api2.example.com"},
	)
	vars := map[string]string{"API_URL": "https://api.example.com"}

	plan := ComputePlan(desired, vars, nil, Options{})
	if len(plan.Updates) != 1 || plan.Updates[0].Name != "API_URL" {
		t.Errorf("expected 1 update for API_URL, got %+v", plan)
	}
	if len(plan.Creates) != 0 || len(plan.Deletes) != 0 {
		t.Errorf("expected no creates or deletes, got %+v", plan)
	}
}

func TestComputePlan_PruneDeletesUnmanaged(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "A", Value: "1"},
		envfile.Entry{Name: "B", Value: "2"},
	)
	vars := map[string]string{"A": "1", "C": "3"}

	plan := ComputePlan(desired, vars, nil, Options{Prune: true})
	if len(plan.Creates) != 1 || plan.Creates[0].Name != "B" {
		t.Errorf("expected create for B, got %+v", plan.Creates)
	}
	if len(plan.Updates) != 0 {
		t.Errorf("expected 0 updates, got %+v", plan.Updates)
	}
	if len(plan.Deletes) != 1 || plan.Deletes[0].Name != "C" {
		t.Errorf("expected delete for C, got %+v", plan.Deletes)
	}
}

func TestComputePlan_NoPruneLeavesUnmanaged(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "A", Value: "1"},
		envfile.Entry{Name: "B", Value: "2"},
	)
	vars := map[string]string{"A": "1", "C": "3"}

	plan := ComputePlan(desired, vars, nil, Options{})
	if len(plan.Creates) != 1 || plan.Creates[0].Name != "B" {
		t.Errorf("expected create for B, got %+v", plan.Creates)
	}
	if len(plan.Deletes) != 0 {
		t.Errorf("expected C untouched without prune, got %+v", plan.Deletes)
	}
}

func TestComputePlan_SecretOverwritePolicy(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "DEPLOY_KEY", Value: "hunter2", Secret: true},
	)
	secrets := map[string]bool{"DEPLOY_KEY": true}

	plan := ComputePlan(desired, nil, secrets, Options{SecretPolicy: SecretPolicyOverwrite})
	if len(plan.Updates) != 1 || plan.Updates[0].Name != "DEPLOY_KEY" {
		t.Errorf("expected existing secret rewritten under overwrite policy, got %+v", plan)
	}
}

func TestComputePlan_SecretSkipPolicy(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "DEPLOY_KEY", Value: "hunter2", Secret: true},
		envfile.Entry{Name: "NEW_KEY", Value: "hunter3", Secret: true},
	)
	secrets := map[string]bool{"DEPLOY_KEY": true}

	plan := ComputePlan(desired, nil, secrets, Options{SecretPolicy: SecretPolicySkip})
	if len(plan.Updates) != 0 {
		t.Errorf("expected existing secret untouched under skip policy, got %+v", plan.Updates)
	}
	if len(plan.Creates) != 1 || plan.Creates[0].Name != "NEW_KEY" {
		t.Errorf("expected missing secret created under skip policy, got %+v", plan.Creates)
	}
}

func TestComputePlan_PruneTracksNamespaces(t *testing.T) {
	// FOO is desired as a variable; the remote secret FOO is a different
	// entry and should be pruned.
	desired := env("production",
		envfile.Entry{Name: "FOO", Value: "bar"},
	)
	vars := map[string]string{"FOO": "bar"}
	secrets := map[string]bool{"FOO": true}

	plan := ComputePlan(desired, vars, secrets, Options{Prune: true})
	if len(plan.Deletes) != 1 || !plan.Deletes[0].Secret || plan.Deletes[0].Name != "FOO" {
		t.Errorf("expected delete of remote secret FOO, got %+v", plan.Deletes)
	}
}

func TestComputePlan_Ordering(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "ZED", Value: "1"},
		envfile.Entry{Name: "ALPHA", Value: "1"},
		envfile.Entry{Name: "MID", Value: "changed"},
	)
	vars := map[string]string{"MID": "old", "B_GONE": "x", "A_GONE": "y"}

	plan := ComputePlan(desired, vars, nil, Options{Prune: true})
	if plan.Creates[0].Name != "ALPHA" || plan.Creates[1].Name != "ZED" {
		t.Errorf("creates not alphabetical: %v", plan.Creates)
	}
	if plan.Deletes[0].Name != "A_GONE" || plan.Deletes[1].Name != "B_GONE" {
		t.Errorf("deletes not alphabetical: %v", plan.Deletes)
	}
}

func TestComputePlan_ReapplyIsEmpty(t *testing.T) {
	desired := env("production",
		envfile.Entry{Name: "A", Value: "1"},
		envfile.Entry{Name: "B", Value: "2"},
		envfile.Entry{Name: "S", Value: "shh", Secret: true},
	)
	vars := map[string]string{"A": "0", "C": "3"}
	secrets := map[string]bool{"OLD": true}
	opts := Options{Prune: true}

	plan := ComputePlan(desired, vars, secrets, opts)

	// Simulate applying the plan to the remote state
	for _, e := range plan.Creates {
		if e.Secret {
			secrets[e.Name] = true
		} else {
			vars[e.Name] = e.Value
		}
	}
	for _, e := range plan.Updates {
		if e.Secret {
			secrets[e.Name] = true
		} else {
			vars[e.Name] = e.Value
		}
	}
	for _, d := range plan.Deletes {
		if d.Secret {
			delete(secrets, d.Name)
		} else {
			delete(vars, d.Name)
		}
	}

	again := ComputePlan(desired, vars, secrets, Options{Prune: true, SecretPolicy: SecretPolicySkip})
	if !again.Empty() {
		t.Errorf("expected empty plan after apply, got %+v", again)
	}
}
