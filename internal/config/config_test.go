package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
)

func TestIsBranchAllowed(t *testing.T) {
	p := Profile{
		AllowedBranches: nil,
		DeniedBranches:  []string{"main"},
	}
	require.False(t, p.IsBranchAllowed("main"))
	require.True(t, p.IsBranchAllowed("feature/x"))

	p2 := Profile{AllowedBranches: []string{"release"}}
	require.True(t, p2.IsBranchAllowed("release"))
	require.False(t, p2.IsBranchAllowed("main"))
}

func TestSymlinksParsing(t *testing.T) {
	p := Profile{RawSymlinks: []string{"config:/etc/app/config", "malformed", "data:/var/app/data"}}
	got := p.Symlinks()
	require.Len(t, got, 2)
	require.Equal(t, Symlink{Source: "config", Target: "/etc/app/config"}, got[0])
	require.Equal(t, Symlink{Source: "data", Target: "/var/app/data"}, got[1])
}

func TestValidateRejectsRelativeBaseDir(t *testing.T) {
	cfg := AgentConfig{BaseDirectory: "relative/dir", RetainedReleases: 1}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsDuplicateProfileIDs(t *testing.T) {
	cfg := AgentConfig{
		BaseDirectory:    "/srv/easydep",
		RetainedReleases: 2,
		Profiles: []Profile{
			{ID: "web"},
			{ID: "web"},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownExtendedProfile(t *testing.T) {
	cfg := AgentConfig{
		BaseDirectory:    "/srv/easydep",
		RetainedReleases: 2,
		Profiles: []Profile{
			{ID: "web", ExtendedProfiles: []string{"missing"}},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "easydep.toml")
	content := `
bind_host = "0.0.0.0:9443"
base_directory = "/srv/easydep"
github_app_id = 12345
github_app_pem_key_path = "/etc/easydep/app.pem"
retained_releases = 3

[[profiles]]
id = "web"
target = "web"
repo_owner = "acme"
repo_name = "web"
symlinks = ["config:/etc/web/config"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Validate() requires git and bash on PATH; exercise
	// the parsing step directly instead of the full Load pipeline.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg AgentConfig
	require.NoError(t, toml.Unmarshal(raw, &cfg))
	require.Equal(t, "0.0.0.0:9443", cfg.BindHost)
	require.Equal(t, uint16(3), cfg.RetainedReleases)
	require.Len(t, cfg.Profiles, 1)

	got, ok := cfg.Profile("web")
	require.True(t, ok)
	require.Equal(t, "acme", got.RepoOwner)
}
