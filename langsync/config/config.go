package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Supported hosting platforms.
const (
	ServerGitHub    = "github"
	ServerGitLab    = "gitlab"
	ServerBitbucket = "bitbucket"
)

// Environment variables consulted for secrets. They win
// over values from the configuration file.
const (
	EnvGitHubToken       = "LANGSYNC_GITHUB_TOKEN"
	EnvGitLabToken       = "LANGSYNC_GITLAB_TOKEN"
	EnvBitbucketPassword = "LANGSYNC_BITBUCKET_PASSWORD"
)

const (
	defaultMainLang      = "en"
	defaultBranch        = "master"
	defaultWebURL        = "https://github.com"
	defaultReviewerCount = 3
)

// ErrInvalidLanguage is returned for language codes that
// cannot name a repository.
var ErrInvalidLanguage = errors.New("invalid language code")

var (
	languageRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	envRefRe   = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// Config is the process-wide configuration. It is loaded
// once at start-up and treated as read-only afterwards.
type Config struct {
	// Org owns every repository.
	Org string `yaml:"org"`
	// MainLang is the language code of the source
	// repository translations are synced from.
	MainLang string `yaml:"main_lang"`
	// RepoSuffix follows the language code in
	// repository names ("<code>.<suffix>").
	RepoSuffix string `yaml:"repo_suffix"`
	// RepoRoot holds one working copy per language.
	RepoRoot string `yaml:"repo_root"`
	// PrimaryBranch is the translated repository's
	// main branch.
	PrimaryBranch string `yaml:"primary_branch"`
	// UpstreamBranch is the source repository branch
	// merged from.
	UpstreamBranch string `yaml:"upstream_branch"`
	// WebURL is the hosting site root used in links.
	WebURL string `yaml:"web_url"`
	// CloneURL is the root that "<org>/<repo>" is
	// appended to when cloning. Defaults to WebURL.
	CloneURL string `yaml:"clone_url"`
	// Server selects the pull request provider.
	Server string `yaml:"server"`

	GitHub    GitHubConfig    `yaml:"github"`
	GitLab    GitLabConfig    `yaml:"gitlab"`
	Bitbucket BitbucketConfig `yaml:"bitbucket"`

	// Reviewers are candidates asked to review sync
	// pull requests.
	Reviewers []string `yaml:"reviewers"`
	// ReviewerCount caps how many reviewers are
	// requested per pull request. Nil means the
	// default; an explicit 0 disables requests.
	ReviewerCount *int `yaml:"reviewer_count"`
	// AlwaysOpenPR routes conflict-free syncs through a
	// pull request instead of pushing to the primary
	// branch.
	AlwaysOpenPR bool `yaml:"always_open_pr"`
}

// GitHubConfig configures the GitHub provider.
type GitHubConfig struct {
	AccessToken    string `yaml:"access_token"`
	EnterpriseHost string `yaml:"enterprise_host"`
	APIURL         string `yaml:"api_url"`
}

// GitLabConfig configures the GitLab provider.
type GitLabConfig struct {
	Host        string `yaml:"host"`
	AccessToken string `yaml:"access_token"`
}

// BitbucketConfig configures the Bitbucket Server
// provider. Project is the project key holding the
// repositories.
type BitbucketConfig struct {
	BaseURL  string `yaml:"base_url"`
	Project  string `yaml:"project"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Load reads and parses the configuration file at path,
// expands ${NAME} references, applies defaults and
// secret overrides, and validates the result.
func Load(path string) (*Config, error) {
	const errCtx = "loading config"

	data, err := os.ReadFile(expandEnv(path)) //nolint:gosec // path from CLI flag
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return cfg, nil
}

// Parse builds a validated Config from YAML. Only the
// braced ${NAME} form is expanded so that values holding
// a literal "$" survive untouched.
func Parse(data []byte) (*Config, error) {
	const errCtx = "parsing config"

	var cfg Config
	if err := yaml.UnmarshalWithOptions(
		[]byte(expandEnv(string(data))),
		&cfg,
		yaml.DisallowUnknownField(),
	); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &cfg, nil
}

// expandEnv replaces ${NAME} with the value of the
// environment variable NAME, or the empty string.
func expandEnv(s string) string {
	return envRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRefRe.FindStringSubmatch(ref)[1])
	})
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.MainLang == "" {
		c.MainLang = defaultMainLang
	}

	if c.PrimaryBranch == "" {
		c.PrimaryBranch = defaultBranch
	}

	if c.UpstreamBranch == "" {
		c.UpstreamBranch = defaultBranch
	}

	if c.WebURL == "" {
		c.WebURL = defaultWebURL
	}

	c.WebURL = strings.TrimRight(c.WebURL, "/")

	if c.CloneURL == "" {
		c.CloneURL = c.WebURL
	}

	c.CloneURL = strings.TrimRight(c.CloneURL, "/")

	if c.Server == "" {
		c.Server = ServerGitHub
	}

	if c.ReviewerCount == nil {
		n := defaultReviewerCount
		c.ReviewerCount = &n
	}
}

// ApplyEnv overrides secrets with values found through
// lookup.
func (c *Config) ApplyEnv(
	lookup func(string) (string, bool),
) {
	if v, ok := lookup(EnvGitHubToken); ok && v != "" {
		c.GitHub.AccessToken = v
	}

	if v, ok := lookup(EnvGitLabToken); ok && v != "" {
		c.GitLab.AccessToken = v
	}

	if v, ok := lookup(EnvBitbucketPassword); ok && v != "" {
		c.Bitbucket.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Org == "" {
		errs = append(errs, errors.New("org is required"))
	}

	if c.RepoSuffix == "" {
		errs = append(errs, errors.New("repo_suffix is required"))
	}

	if c.RepoRoot == "" {
		errs = append(errs, errors.New("repo_root is required"))
	}

	if err := ValidateLanguage(c.MainLang); err != nil {
		errs = append(errs, fmt.Errorf("main_lang: %w", err))
	}

	switch c.Server {
	case ServerGitHub, ServerGitLab, ServerBitbucket:
	default:
		errs = append(errs, fmt.Errorf(
			"server must be one of %s, %s, %s, got %q",
			ServerGitHub, ServerGitLab, ServerBitbucket,
			c.Server,
		))
	}

	if c.ReviewerCount != nil && *c.ReviewerCount < 0 {
		errs = append(errs, errors.New(
			"reviewer_count must not be negative",
		))
	}

	return errors.Join(errs...)
}

// ValidateLanguage rejects codes that cannot be used as
// part of a repository name or directory.
func ValidateLanguage(code string) error {
	if !languageRe.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
	}

	return nil
}

// ReviewerLimit returns how many reviewers to request
// per pull request.
func (c *Config) ReviewerLimit() int {
	if c.ReviewerCount == nil {
		return defaultReviewerCount
	}

	return *c.ReviewerCount
}

// RepoName returns the repository name for a language.
func (c *Config) RepoName(code string) string {
	return code + "." + c.RepoSuffix
}

// MainRepoName returns the source repository name.
func (c *Config) MainRepoName() string {
	return c.RepoName(c.MainLang)
}

// RepoDir returns the working copy location for a
// language.
func (c *Config) RepoDir(code string) string {
	return filepath.Join(c.RepoRoot, c.RepoName(code))
}

// OriginURL returns the clone URL of the translated
// repository for a language.
func (c *Config) OriginURL(code string) string {
	return c.CloneURL + "/" + c.Org + "/" + c.RepoName(code)
}

// UpstreamURL returns the clone URL of the source
// repository.
func (c *Config) UpstreamURL() string {
	return c.CloneURL + "/" + c.Org + "/" + c.MainRepoName()
}

// AccessToken returns the secret used to authenticate
// git transport against the configured server.
func (c *Config) AccessToken() string {
	switch c.Server {
	case ServerGitLab:
		return c.GitLab.AccessToken
	case ServerBitbucket:
		return c.Bitbucket.Password
	default:
		return c.GitHub.AccessToken
	}
}

// TransportUser returns the user name paired with
// AccessToken for HTTPS git transport.
func (c *Config) TransportUser() string {
	switch c.Server {
	case ServerGitLab:
		return "oauth2"
	case ServerBitbucket:
		return c.Bitbucket.User
	default:
		return "x-access-token"
	}
}
