package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/micahrl/envsync/internal/envfile"
	"github.com/micahrl/envsync/internal/gh"
	"github.com/micahrl/envsync/internal/syncer"
)

var version = "dev"

const httpTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: envsync <command> [flags]\n\nCommands:\n  sync     Sync environment variables and secrets from a TOML file\n  version  Print version\n\nRun 'envsync sync --help' for sync flags.\n")
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	repo := fs.String("repo", "", "target repository as owner/name (overrides the config file)")
	configPath := fs.String("config", "github_environments.toml", "path to environments file")
	only := fs.String("environment", "", "sync only this environment")
	token := fs.String("token", "", "GitHub access token with repo scope (defaults to $GITHUB_TOKEN)")
	username := fs.String("username", "", "username for User-Agent headers (defaults to the repository owner)")
	dryRun := fs.Bool("dry-run", false, "compute and print the plan without applying")
	prune := fs.Bool("prune", false, "delete remote entries absent from the config file")
	secrets := fs.String("secrets", "overwrite", "secret policy: overwrite or skip")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	// Parse and validate before touching the network
	file, err := envfile.Load(*configPath)
	if err != nil {
		fatal("%v", err)
	}
	if errs := file.Validate(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "Validation errors:\n")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		os.Exit(1)
	}

	// CLI flags override config
	if *repo != "" {
		file.Repository = *repo
	}
	if file.Repository == "" {
		fatal("repository is required (set in config file or via -repo)")
	}
	owner, name, ok := strings.Cut(file.Repository, "/")
	if !ok || owner == "" || name == "" {
		fatal("repository must be owner/name, got %q", file.Repository)
	}

	if *token == "" {
		*token = os.Getenv("GITHUB_TOKEN")
	}
	if *token == "" {
		fatal("token is required (set via -token or $GITHUB_TOKEN)")
	}
	if *username == "" {
		*username = owner
	}

	policy := syncer.SecretPolicy(*secrets)
	if policy != syncer.SecretPolicyOverwrite && policy != syncer.SecretPolicySkip {
		fatal("secrets policy must be overwrite or skip, got %q", *secrets)
	}

	stats := file.Stats()
	fmt.Fprintf(os.Stderr, "Loaded %d environments (%d variables, %d secrets) from %s\n",
		stats.NumEnvironments, stats.NumVariables, stats.NumSecrets, *configPath)

	ctx := context.Background()
	client, err := gh.NewClient(ctx, &http.Client{Timeout: httpTimeout}, gh.ClientConfig{
		Token:    *token,
		Username: *username,
		Owner:    owner,
		Repo:     name,
	})
	if err != nil {
		fatal("initializing github client: %v", err)
	}

	opts := syncer.Options{
		Prune:        *prune,
		DryRun:       *dryRun,
		Only:         *only,
		SecretPolicy: policy,
	}

	report, err := syncer.Run(ctx, client, file, opts)
	if err != nil {
		printReport(report, *dryRun)
		fatal("sync aborted: %v", err)
	}

	printReport(report, *dryRun)

	if *dryRun {
		fmt.Fprintf(os.Stderr, "\nDry run complete. No changes made.\n")
		return
	}
	if report.Failed() > 0 || len(report.Skipped) > 0 {
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "\nSync complete.\n")
}

func printReport(report *syncer.Report, dryRun bool) {
	if dryRun {
		for _, p := range report.Plans {
			fmt.Printf("=== %s ===\n", p.Env)
			if p.Empty() {
				fmt.Println("up to date")
				continue
			}
			for _, e := range p.Creates {
				fmt.Printf("create %s%s\n", e.Name, kindSuffix(e.Secret))
			}
			for _, e := range p.Updates {
				fmt.Printf("update %s%s\n", e.Name, kindSuffix(e.Secret))
			}
			for _, d := range p.Deletes {
				fmt.Printf("delete %s%s\n", d.Name, kindSuffix(d.Secret))
			}
		}
		return
	}

	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("failed  %s %s%s in %s: %v\n", res.Op, res.Name, kindSuffix(res.Secret), res.Env, res.Err)
		} else {
			fmt.Printf("applied %s %s%s in %s\n", res.Op, res.Name, kindSuffix(res.Secret), res.Env)
		}
	}
	for _, env := range report.Skipped {
		fmt.Printf("skipped environment %s\n", env)
	}
	fmt.Fprintf(os.Stderr, "\n%d applied, %d failed, %d environments skipped\n",
		report.Applied(), report.Failed(), len(report.Skipped))
}

func kindSuffix(secret bool) string {
	if secret {
		return " (secret)"
	}
	return ""
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
