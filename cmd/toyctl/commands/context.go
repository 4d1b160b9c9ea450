package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snugbit/toygateway/pkg/cli"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage gateway-target contexts",
	}
	cmd.AddCommand(
		newContextAddCmd(),
		newContextUseCmd(),
		newContextListCmd(),
		newContextDeleteCmd(),
	)
	return cmd
}

func newContextAddCmd() *cobra.Command {
	var gatewayURL, deviceID, toyID, authToken string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a gateway context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.AddContext(args[0], &cli.Context{
				Name:       args[0],
				GatewayURL: gatewayURL,
				DeviceID:   deviceID,
				ToyID:      toyID,
				AuthToken:  authToken,
			}); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			cli.PrintSuccess("context %q added", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&gatewayURL, "gateway-url", "", "gateway ws[s]:// base URL")
	cmd.Flags().StringVar(&deviceID, "device-id", "", "simulated device id")
	cmd.Flags().StringVar(&toyID, "toy-id", "", "toy persona id")
	cmd.Flags().StringVar(&authToken, "auth-token", "", "bearer token presented to the gateway")
	return cmd
}

func newContextUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.UseContext(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			cli.PrintSuccess("switched to context %q", args[0])
			return nil
		},
	}
}

func newContextListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			current, _ := cfg.GetCurrentContext()
			for _, name := range cfg.ListContexts() {
				marker := "  "
				if current != nil && current.Name == name {
					marker = "* "
				}
				fmt.Println(marker + name)
			}
			return nil
		},
	}
}

func newContextDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.DeleteContext(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			cli.PrintSuccess("context %q deleted", args[0])
			return nil
		},
	}
}
