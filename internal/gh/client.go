package gh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	perPage        = 100
)

// ClientConfig holds everything needed to construct a Client.
type ClientConfig struct {
	// Token is a repo-scoped access token used as a bearer credential.
	Token string
	// Username is applied to User-Agent headers. GitHub asks that this be
	// the username or app name making the requests.
	Username string
	Owner    string
	Repo     string

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
	// RetryAttempts and RetryDelay bound the retry of transient failures.
	// Zero values use the defaults (3 attempts, 500ms base delay).
	RetryAttempts int
	RetryDelay    time.Duration
}

// Client is a minimal client over the GitHub environments, variables, and
// secrets APIs, scoped to a single repository.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	agent   string
	owner   string
	repo    string
	repoID  int64
	retry   retryPolicy

	// Environment public keys, cached per environment. The sync pass is
	// sequential, so no locking.
	pubKeys map[string]*publicKey
}

type repository struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type publicKey struct {
	KeyID string `json:"key_id"`
	Key   string `json:"key"`
}

// NewClient fetches repository details up front so that later calls can
// address the repository by its numeric id, which is how the variables
// endpoints are shaped.
func NewClient(ctx context.Context, httpClient *http.Client, cfg ClientConfig) (*Client, error) {
	c := &Client{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		agent:   cfg.Username,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		retry:   retryPolicy{attempts: cfg.RetryAttempts, delay: cfg.RetryDelay},
		pubKeys: make(map[string]*publicKey),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.retry.attempts <= 0 {
		c.retry.attempts = defaultRetryAttempts
	}
	if c.retry.delay <= 0 {
		c.retry.delay = defaultRetryDelay
	}

	var repo repository
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(cfg.Owner), url.PathEscape(cfg.Repo))
	if err := c.do(ctx, http.MethodGet, path, nil, &repo); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", cfg.Owner, cfg.Repo, err)
	}
	c.repoID = repo.ID

	log.WithFields(log.Fields{
		"repository": fmt.Sprintf("%s/%s", cfg.Owner, cfg.Repo),
		"id":         repo.ID,
	}).Debug("initialized github client")

	return c, nil
}

// ListEnvironments returns the names of all environments in the repository.
func (c *Client) ListEnvironments(ctx context.Context) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		var resp struct {
			TotalCount   int `json:"total_count"`
			Environments []struct {
				Name string `json:"name"`
			} `json:"environments"`
		}
		path := fmt.Sprintf("%s?per_page=%d&page=%d", c.environmentsPath(), perPage, page)
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing environments: %w", err)
		}
		for _, env := range resp.Environments {
			names = append(names, env.Name)
		}
		if len(resp.Environments) == 0 || len(names) >= resp.TotalCount {
			return names, nil
		}
	}
}

// UpsertEnvironment creates the environment if it does not exist. The API
// call is the same for create and update.
func (c *Client) UpsertEnvironment(ctx context.Context, env string) error {
	path := fmt.Sprintf("%s/%s", c.environmentsPath(), url.PathEscape(env))
	if err := c.do(ctx, http.MethodPut, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("upserting environment %s: %w", env, err)
	}
	return nil
}

// DeleteEnvironment removes an environment and everything in it.
func (c *Client) DeleteEnvironment(ctx context.Context, env string) error {
	path := fmt.Sprintf("%s/%s", c.environmentsPath(), url.PathEscape(env))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting environment %s: %w", env, err)
	}
	return nil
}

// ListVariables returns all variables in an environment as name -> value.
func (c *Client) ListVariables(ctx context.Context, env string) (map[string]string, error) {
	vars := make(map[string]string)
	for page := 1; ; page++ {
		var resp struct {
			TotalCount int `json:"total_count"`
			Variables  []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"variables"`
		}
		path := fmt.Sprintf("%s?per_page=%d&page=%d", c.variablesPath(env), perPage, page)
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing variables for %s: %w", env, err)
		}
		for _, v := range resp.Variables {
			vars[v.Name] = v.Value
		}
		if len(resp.Variables) == 0 || len(vars) >= resp.TotalCount {
			return vars, nil
		}
	}
}

// GetVariable returns a variable's value, with ok=false when it does not
// exist.
func (c *Client) GetVariable(ctx context.Context, env, name string) (string, bool, error) {
	var resp struct {
		Value string `json:"value"`
	}
	path := fmt.Sprintf("%s/%s", c.variablesPath(env), url.PathEscape(name))
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("getting variable %s in %s: %w", name, env, err)
	}
	return resp.Value, true, nil
}

// CreateVariable adds a new variable to an environment.
func (c *Client) CreateVariable(ctx context.Context, env, name, value string) error {
	body := map[string]string{"name": name, "value": value}
	if err := c.do(ctx, http.MethodPost, c.variablesPath(env), body, nil); err != nil {
		return fmt.Errorf("creating variable %s in %s: %w", name, env, err)
	}
	return nil
}

// UpdateVariable changes the value of an existing variable.
func (c *Client) UpdateVariable(ctx context.Context, env, name, value string) error {
	body := map[string]string{"name": name, "value": value}
	path := fmt.Sprintf("%s/%s", c.variablesPath(env), url.PathEscape(name))
	if err := c.do(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("updating variable %s in %s: %w", name, env, err)
	}
	return nil
}

// UpsertVariable creates or updates a variable depending on whether it
// already exists.
func (c *Client) UpsertVariable(ctx context.Context, env, name, value string) error {
	_, ok, err := c.GetVariable(ctx, env, name)
	if err != nil {
		return err
	}
	if ok {
		return c.UpdateVariable(ctx, env, name, value)
	}
	return c.CreateVariable(ctx, env, name, value)
}

// DeleteVariable removes a variable from an environment.
func (c *Client) DeleteVariable(ctx context.Context, env, name string) error {
	path := fmt.Sprintf("%s/%s", c.variablesPath(env), url.PathEscape(name))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting variable %s in %s: %w", name, env, err)
	}
	return nil
}

// ListSecretNames returns the names of all secrets in an environment. The
// API never returns secret values.
func (c *Client) ListSecretNames(ctx context.Context, env string) (map[string]bool, error) {
	names := make(map[string]bool)
	for page := 1; ; page++ {
		var resp struct {
			TotalCount int `json:"total_count"`
			Secrets    []struct {
				Name string `json:"name"`
			} `json:"secrets"`
		}
		path := fmt.Sprintf("%s?per_page=%d&page=%d", c.secretsPath(env), perPage, page)
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("listing secrets for %s: %w", env, err)
		}
		for _, s := range resp.Secrets {
			names[s.Name] = true
		}
		if len(resp.Secrets) == 0 || len(names) >= resp.TotalCount {
			return names, nil
		}
	}
}

// PutSecret creates or updates a secret. The value is sealed with the
// environment's public key before it leaves the process.
func (c *Client) PutSecret(ctx context.Context, env, name, value string) error {
	key, err := c.environmentPublicKey(ctx, env)
	if err != nil {
		return fmt.Errorf("putting secret %s in %s: %w", name, env, err)
	}

	sealed, err := sealSecret(key.Key, value)
	if err != nil {
		return fmt.Errorf("putting secret %s in %s: %w", name, env, err)
	}

	body := map[string]string{
		"encrypted_value": sealed,
		"key_id":          key.KeyID,
	}
	path := fmt.Sprintf("%s/%s", c.secretsPath(env), url.PathEscape(name))
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("putting secret %s in %s: %w", name, env, err)
	}
	return nil
}

// DeleteSecret removes a secret from an environment.
func (c *Client) DeleteSecret(ctx context.Context, env, name string) error {
	path := fmt.Sprintf("%s/%s", c.secretsPath(env), url.PathEscape(name))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting secret %s in %s: %w", name, env, err)
	}
	return nil
}

func (c *Client) environmentPublicKey(ctx context.Context, env string) (*publicKey, error) {
	if key, ok := c.pubKeys[env]; ok {
		return key, nil
	}
	var key publicKey
	path := fmt.Sprintf("%s/public-key", c.secretsPath(env))
	if err := c.do(ctx, http.MethodGet, path, nil, &key); err != nil {
		return nil, fmt.Errorf("getting public key: %w", err)
	}
	c.pubKeys[env] = &key
	return &key, nil
}

func (c *Client) environmentsPath() string {
	return fmt.Sprintf("/repos/%s/%s/environments", url.PathEscape(c.owner), url.PathEscape(c.repo))
}

func (c *Client) variablesPath(env string) string {
	return fmt.Sprintf("/repositories/%d/environments/%s/variables", c.repoID, url.PathEscape(env))
}

func (c *Client) secretsPath(env string) string {
	return fmt.Sprintf("%s/%s/secrets", c.environmentsPath(), url.PathEscape(env))
}

// do issues one API request, retrying transient failures with exponential
// backoff up to the configured attempt limit.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}

		var rerr *RemoteError
		if !errors.As(err, &rerr) || !rerr.Retryable() || attempt >= c.retry.attempts-1 {
			return err
		}

		delay := c.retry.backoff(attempt)
		log.WithFields(log.Fields{
			"method":  method,
			"path":    path,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Debug("retrying after transient error")
		if werr := waitRetry(ctx, delay); werr != nil {
			return werr
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return c.apiError(resp, path)
}

// apiError maps a non-2xx response onto the error taxonomy.
func (c *Client) apiError(resp *http.Response, path string) error {
	msg := apiMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: msg}
	case http.StatusNotFound:
		return &NotFoundError{Resource: path, Message: msg}
	default:
		return &RemoteError{StatusCode: resp.StatusCode, Message: msg}
	}
}

// apiMessage extracts the message field from a GitHub error body.
func apiMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Message == "" {
		return "(no message)"
	}
	return payload.Message
}
