// Package githubapp implements the repository collaborator (spec.md
// §4.2): resolving a release by id and minting a short-lived
// repo-scoped clone token, using a GitHub App installation. Adapted
// from the teacher's internal/githubapp package, which used the same
// ghinstallation/go-github pairing to mint installation clients for
// webhook-triggered repo operations.
package githubapp

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"

	"easydep/internal/apperr"
)

// App holds the GitHub App's identity and private key. It only ever
// constructs installation-scoped clients; it never speaks as the app
// itself outside of installation discovery.
type App struct {
	AppID         int64
	PrivateKeyPEM []byte
}

// New constructs an App, reading the PEM key from pemKeyPath.
func New(appID int64, pemKeyPath string) (*App, error) {
	keyBytes, err := os.ReadFile(pemKeyPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConfigInvalid, "read github app pem key", err)
	}
	if len(strings.TrimSpace(string(keyBytes))) == 0 {
		return nil, apperr.New(apperr.CodeConfigInvalid, "empty github app pem key")
	}
	return &App{AppID: appID, PrivateKeyPEM: keyBytes}, nil
}

func (a *App) appTransport() (*ghinstallation.AppsTransport, error) {
	return ghinstallation.NewAppsTransport(http.DefaultTransport, a.AppID, a.PrivateKeyPEM)
}

// installationClient resolves the installation id for owner/repo and
// returns a github.Client authorized as that installation.
func (a *App) installationClient(ctx context.Context, owner, repo string) (*github.Client, error) {
	appTr, err := a.appTransport()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeAuthUnavailable, "build app transport", err)
	}
	appClient := github.NewClient(&http.Client{Transport: appTr})

	inst, _, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeAuthUnavailable, "find repository installation", err)
	}

	instTr := ghinstallation.NewFromAppsTransport(appTr, inst.GetID())
	return github.NewClient(&http.Client{Transport: instTr}), nil
}
