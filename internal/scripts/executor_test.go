package scripts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"easydep/internal/config"
	"easydep/internal/process"
)

type fakeResolver map[string]config.Profile

func (f fakeResolver) Profile(id string) (config.Profile, bool) {
	p, ok := f[id]
	return p, ok
}

func writeScript(t *testing.T, checkoutDir, profileID, phase, body string) {
	t.Helper()
	dir := filepath.Join(checkoutDir, ".easydep", profileID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, phase+".sh"), []byte(body), 0o755))
}

func drain(out chan process.Frame) {
	for range out {
	}
}

func TestExecuteSkipsMissingScripts(t *testing.T) {
	dir := t.TempDir()
	p := config.Profile{ID: "web"}
	out := make(chan process.Frame, 64)
	go drain(out)

	err := Execute(context.Background(), fakeResolver{}, p, PhaseInit, dir, 1, out)
	require.NoError(t, err)
	close(out)
}

func TestExecuteRunsExtendedProfilesBeforeMain(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "base", "init", "#!/bin/sh\necho base-init\n")
	writeScript(t, dir, "web", "init", "#!/bin/sh\necho web-init\n")

	p := config.Profile{ID: "web", ExtendedProfiles: []string{"base"}}
	resolver := fakeResolver{"base": config.Profile{ID: "base"}}

	out := make(chan process.Frame, 64)
	var frames []process.Frame
	done := make(chan struct{})
	go func() {
		for f := range out {
			frames = append(frames, f)
		}
		close(done)
	}()

	err := Execute(context.Background(), resolver, p, PhaseInit, dir, 1, out)
	close(out)
	<-done
	require.NoError(t, err)

	var lines []string
	for _, f := range frames {
		if f.Log != nil {
			lines = append(lines, f.Log.Content)
		}
	}
	require.Contains(t, lines, "base-init")
	require.Contains(t, lines, "web-init")
}

func TestExecuteExtendedScriptFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "base", "init", "#!/bin/sh\nexit 1\n")
	writeScript(t, dir, "web", "init", "#!/bin/sh\necho should-not-matter\n")

	p := config.Profile{ID: "web", ExtendedProfiles: []string{"base"}}
	resolver := fakeResolver{"base": config.Profile{ID: "base"}}

	out := make(chan process.Frame, 64)
	go drain(out)

	err := Execute(context.Background(), resolver, p, PhaseInit, dir, 1, out)
	close(out)
	require.Error(t, err)
}

func TestExecuteMainScriptFailureNonFatalByDefault(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "web", "init", "#!/bin/sh\nexit 1\n")
	p := config.Profile{ID: "web"}

	out := make(chan process.Frame, 64)
	go drain(out)

	err := Execute(context.Background(), fakeResolver{}, p, PhaseInit, dir, 1, out)
	close(out)
	require.NoError(t, err)
}

func TestExecuteMainScriptFailureFatalWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "web", "init", "#!/bin/sh\nexit 1\n")
	p := config.Profile{ID: "web", FailDeploymentOnScriptError: true}

	out := make(chan process.Frame, 64)
	go drain(out)

	err := Execute(context.Background(), fakeResolver{}, p, PhaseInit, dir, 1, out)
	close(out)
	require.Error(t, err)
}
