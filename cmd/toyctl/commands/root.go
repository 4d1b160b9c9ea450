package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/snugbit/toygateway/pkg/cli"
)

// appName names the config directory toyctl uses under ~/.toygateway.
const appName = "toyctl"

// loadConfig loads toyctl's context config. TOYCTL_CONFIG_DIR overrides the
// default ~/.toygateway/toyctl location, letting tests point at a temp dir
// without touching the real home directory.
func loadConfig() (*cli.Config, error) {
	if dir := os.Getenv("TOYCTL_CONFIG_DIR"); dir != "" {
		return cli.LoadConfigWithPath(appName, filepath.Join(dir, "config.yaml"))
	}
	return cli.LoadConfig(appName)
}

// Execute runs the root toyctl command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toyctl",
		Short: "Manage and simulate toygateway devices",
	}
	root.AddCommand(
		newContextCmd(),
		newSimulateCmd(),
		newFirmwareCmd(),
	)
	return root
}
