package process

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"easydep/internal/apperr"
)

func runAndCollect(cmd *exec.Cmd) ([]Frame, error) {
	out := make(chan Frame, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- Run(context.Background(), cmd, ActionInitScript, 42, out)
	}()

	var frames []Frame
	for f := range out {
		frames = append(frames, f)
	}
	return frames, <-errCh
}

func TestRunSuccessEmitsStartedRunningAndTerminalFrames(t *testing.T) {
	cmd := exec.Command("sh", "-c", "echo out-line; echo err-line 1>&2")
	frames, err := runAndCollect(cmd)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 3)

	require.Equal(t, StatusStarted, frames[0].Status)
	last := frames[len(frames)-1]
	require.Equal(t, StatusCompletedSuccess, last.Status)
	require.Contains(t, last.Log.Content, "Process finished with exit status 0")

	var sawOut, sawErr bool
	for _, f := range frames[1 : len(frames)-1] {
		require.Equal(t, StatusRunning, f.Status)
		if f.Log.Stream == StreamStdout {
			sawOut = true
		} else {
			sawErr = true
		}
	}
	require.True(t, sawOut)
	require.True(t, sawErr)
}

func TestRunNonZeroExitIsScriptFailed(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 3")
	frames, err := runAndCollect(cmd)
	require.Error(t, err)
	require.Equal(t, apperr.CodeScriptFailed, apperr.CodeOf(err))

	last := frames[len(frames)-1]
	require.Equal(t, StatusCompletedFailure, last.Status)
}

func TestRunMissingBinaryIsProcessIOError(t *testing.T) {
	cmd := exec.Command("/no/such/binary-easydep-test")
	out := make(chan Frame, 8)
	err := Run(context.Background(), cmd, ActionInitScript, 1, out)
	require.Error(t, err)
	require.Equal(t, apperr.CodeProcessIOError, apperr.CodeOf(err))
}
