package commands

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestConfigDir points loadConfig at a temp directory for the
// duration of the test, restoring the prior TOYCTL_CONFIG_DIR on cleanup.
func setupTestConfigDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, hadOld := os.LookupEnv("TOYCTL_CONFIG_DIR")
	os.Setenv("TOYCTL_CONFIG_DIR", dir)
	t.Cleanup(func() {
		if hadOld {
			os.Setenv("TOYCTL_CONFIG_DIR", old)
		} else {
			os.Unsetenv("TOYCTL_CONFIG_DIR")
		}
	})
}

func TestContextAddUseList(t *testing.T) {
	setupTestConfigDir(t)

	root := newRootCmd()
	root.SetArgs([]string{"context", "add", "kitchen", "--gateway-url", "wss://gw.example.com", "--device-id", "dev-1"})
	require.NoError(t, root.Execute())

	root = newRootCmd()
	root.SetArgs([]string{"context", "use", "kitchen"})
	require.NoError(t, root.Execute())

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "kitchen", cfg.CurrentContext)

	current, err := cfg.GetCurrentContext()
	require.NoError(t, err)
	require.Equal(t, "wss://gw.example.com", current.GatewayURL)
	require.Equal(t, "dev-1", current.DeviceID)
}

func TestContextDeleteClearsCurrent(t *testing.T) {
	setupTestConfigDir(t)

	root := newRootCmd()
	root.SetArgs([]string{"context", "add", "kitchen", "--gateway-url", "wss://gw.example.com"})
	require.NoError(t, root.Execute())

	root = newRootCmd()
	root.SetArgs([]string{"context", "use", "kitchen"})
	require.NoError(t, root.Execute())

	root = newRootCmd()
	root.SetArgs([]string{"context", "delete", "kitchen"})
	require.NoError(t, root.Execute())

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Empty(t, cfg.CurrentContext)
	require.Empty(t, cfg.ListContexts())
}

func TestResolveContextRequiresGatewayURL(t *testing.T) {
	setupTestConfigDir(t)

	_, err := resolveContext("", "", "", "")
	require.Error(t, err)

	_, err = resolveContext("wss://override.example.com", "", "", "")
	require.NoError(t, err)
}
