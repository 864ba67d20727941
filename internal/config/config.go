// Package config loads and validates the agent's TOML configuration,
// modeled on the teacher's internal/config.Load but switched from
// environment variables to a TOML file per the fleet controller's
// on-disk configuration contract.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"easydep/internal/apperr"
)

// Symlink is a single source:target pair from a profile's symlinks list.
// Source is relative to the checkout; target is an absolute path.
type Symlink struct {
	Source string
	Target string
}

// Profile is an immutable deployment configuration, as described in
// spec.md §3.
type Profile struct {
	ID                string   `toml:"id"`
	Target            string   `toml:"target"`
	ExtendOnly        bool     `toml:"extend_only"`
	RepoOwner         string   `toml:"repo_owner"`
	RepoName          string   `toml:"repo_name"`
	AllowedBranches   []string `toml:"allowed_branches"`
	DeniedBranches    []string `toml:"denied_branches"`
	RevisionFile      string   `toml:"revision_file"`
	ExtendedProfiles  []string `toml:"extended_profiles"`
	RawSymlinks       []string `toml:"symlinks"`

	// FailDeploymentOnScriptError overrides the inherited source
	// behaviour (spec.md §9 open question #1): when true, a non-zero
	// exit from the main init script aborts the deployment instead of
	// leaving it Prepared for operator inspection.
	FailDeploymentOnScriptError bool `toml:"fail_deployment_on_script_error"`
}

// Symlinks parses the raw "source:target" pairs.
func (p Profile) Symlinks() []Symlink {
	out := make([]Symlink, 0, len(p.RawSymlinks))
	for _, raw := range p.RawSymlinks {
		source, target, ok := strings.Cut(raw, ":")
		if !ok {
			continue
		}
		out = append(out, Symlink{Source: source, Target: target})
	}
	return out
}

// IsBranchAllowed implements §3's filter: denied branches are checked
// first, then an empty allow-list means allow-all.
func (p Profile) IsBranchAllowed(branch string) bool {
	for _, denied := range p.DeniedBranches {
		if denied == branch {
			return false
		}
	}
	if len(p.AllowedBranches) == 0 {
		return true
	}
	for _, allowed := range p.AllowedBranches {
		if allowed == branch {
			return true
		}
	}
	return false
}

// AgentConfig is the top level agent configuration (spec.md §3).
type AgentConfig struct {
	BindHost string `toml:"bind_host"`

	BaseDirectory string `toml:"base_directory"`

	GitHubAppID         int64  `toml:"github_app_id"`
	GitHubAppPEMKeyPath string `toml:"github_app_pem_key_path"`

	RetainedReleases uint16 `toml:"retained_releases"`

	DatabasePath string `toml:"database_path"`

	Profiles []Profile `toml:"profiles"`
}

// Load reads and validates the agent configuration from path.
func Load(path string) (AgentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AgentConfig{}, apperr.Wrap(apperr.CodeConfigInvalid, "read config file", err)
	}
	var cfg AgentConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return AgentConfig{}, apperr.Wrap(apperr.CodeConfigInvalid, "parse config file", err)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "easydep.sqlite"
	}
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// Validate checks the invariants spec.md §7 calls ConfigInvalid: base
// dir absoluteness, duplicate profile ids, and presence of git/bash.
func (c AgentConfig) Validate() error {
	if !strings.HasPrefix(c.BaseDirectory, "/") {
		return apperr.New(apperr.CodeConfigInvalid, "base_directory must be absolute")
	}
	if c.RetainedReleases < 1 {
		return apperr.New(apperr.CodeConfigInvalid, "retained_releases must be >= 1")
	}

	seen := make(map[string]struct{}, len(c.Profiles))
	for _, p := range c.Profiles {
		if p.ID == "" {
			return apperr.New(apperr.CodeConfigInvalid, "profile id must not be empty")
		}
		if _, dup := seen[p.ID]; dup {
			return apperr.New(apperr.CodeConfigInvalid, fmt.Sprintf("duplicate profile id: %s", p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	for _, p := range c.Profiles {
		for _, ext := range p.ExtendedProfiles {
			if _, ok := seen[ext]; !ok {
				return apperr.New(apperr.CodeConfigInvalid, fmt.Sprintf("profile %s extends unknown profile %s", p.ID, ext))
			}
		}
	}

	for _, bin := range []string{"git", "bash"} {
		if _, err := exec.LookPath(bin); err != nil {
			return apperr.Wrap(apperr.CodeConfigInvalid, fmt.Sprintf("required binary %q not found on PATH", bin), err)
		}
	}

	return nil
}

// Profile resolves a profile by id.
func (c AgentConfig) Profile(id string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// DeployableProfileIDs returns the ids of non-extend-only profiles, as
// used by GetStatus's deployment_configurations field.
func (c AgentConfig) DeployableProfileIDs() []string {
	out := make([]string, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		if !p.ExtendOnly {
			out = append(out, p.ID)
		}
	}
	return out
}
