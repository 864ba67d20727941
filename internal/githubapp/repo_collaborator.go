package githubapp

import (
	"context"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"

	"easydep/internal/apperr"
	"easydep/internal/config"
)

// ReleaseMeta is the metadata the core consumes for a GitHub release,
// per spec.md §4.2.
type ReleaseMeta struct {
	ID             uint64
	TagName        string
	TargetCommitish string
}

// Token wraps a short-lived clone token. Its String method returns a
// fixed redacted placeholder, so formatting a Token with %s or %v
// never prints the secret (spec.md §3.5, §9).
type Token struct {
	value string
}

// Reveal is the single explicit accessor for the wrapped secret.
func (t Token) Reveal() string { return t.value }

func (t Token) String() string { return "githubapp.Token(redacted)" }

// Collaborator is the interface the core consumes (spec.md §4.2).
type Collaborator interface {
	Release(ctx context.Context, p config.Profile, releaseID uint64) (ReleaseMeta, error)
	CloneToken(ctx context.Context, p config.Profile) (Token, error)
}

// Release resolves release metadata for a (profile, release id) pair.
func (a *App) Release(ctx context.Context, p config.Profile, releaseID uint64) (ReleaseMeta, error) {
	client, err := a.installationClient(ctx, p.RepoOwner, p.RepoName)
	if err != nil {
		return ReleaseMeta{}, err
	}
	rel, resp, err := client.Repositories.GetRelease(ctx, p.RepoOwner, p.RepoName, int64(releaseID))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ReleaseMeta{}, apperr.Wrap(apperr.CodeReleaseNotFound, "release not found", err)
		}
		return ReleaseMeta{}, apperr.Wrap(apperr.CodeRepoUnavailable, "get release", err)
	}
	return ReleaseMeta{
		ID:              uint64(rel.GetID()),
		TagName:         rel.GetTagName(),
		TargetCommitish: rel.GetTargetCommitish(),
	}, nil
}

// CloneToken mints a short-lived, repo-scoped installation access
// token suitable for an HTTPS git clone.
func (a *App) CloneToken(ctx context.Context, p config.Profile) (Token, error) {
	appTr, err := a.appTransport()
	if err != nil {
		return Token{}, apperr.Wrap(apperr.CodeAuthUnavailable, "build app transport", err)
	}
	appClient := github.NewClient(&http.Client{Transport: appTr})

	inst, _, err := appClient.Apps.FindRepositoryInstallation(ctx, p.RepoOwner, p.RepoName)
	if err != nil {
		return Token{}, apperr.Wrap(apperr.CodeAuthUnavailable, "find repository installation", err)
	}

	instTr := ghinstallation.NewFromAppsTransport(appTr, inst.GetID())
	tok, err := instTr.Token(ctx)
	if err != nil {
		return Token{}, apperr.Wrap(apperr.CodeAuthUnavailable, "mint installation token", err)
	}
	return Token{value: tok}, nil
}
