package supervisor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-mcp/forge/internal/constants"
)

func TestPIDFile_WriteReadRemoveRoundTrip(t *testing.T) {
	t.Setenv("RUNTIME_DIR", t.TempDir())

	require.NoError(t, writePIDFile(constants.RoleCoder, 12345))

	pid, ok, err := readPIDFile(constants.RoleCoder)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12345, pid)

	require.NoError(t, removePIDFile(constants.RoleCoder))

	_, ok, err = readPIDFile(constants.RoleCoder)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPIDAlive_CurrentProcessIsAlive(t *testing.T) {
	alive, err := pidAlive(os.Getpid())
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestPIDAlive_ImplausiblyHighPIDIsNotAlive(t *testing.T) {
	alive, err := pidAlive(1 << 30)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestStatus_NoPIDFileMeansNotRunning(t *testing.T) {
	t.Setenv("RUNTIME_DIR", t.TempDir())

	s := New(testLogger())
	status, err := s.Status(constants.RoleResearcher, 18101)
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestStop_NoPIDFileIsNotAnError(t *testing.T) {
	t.Setenv("RUNTIME_DIR", t.TempDir())

	s := New(testLogger())
	assert.NoError(t, s.Stop(constants.RoleSecretary))
}
