package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath     string
	provider       string
	specialization string
	model          string
	orgID          string
	envID          string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "graph-fleet",
		Short:         "Multi-cloud agent runtime",
		Long:          "graph-fleet binds a cloud credential per conversation and runs a specialized agent over the platform and provider tool servers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", defaultConfigPath(), "config file path")
	pf.StringVar(&opts.provider, "provider", "", "cloud provider (aws, gcp, azure)")
	pf.StringVar(&opts.specialization, "specialization", "", "agent specialization")
	pf.StringVar(&opts.model, "model", "", "chat model name")
	pf.StringVar(&opts.orgID, "org", "", "organization id")
	pf.StringVar(&opts.envID, "env", "", "environment id")

	root.AddCommand(
		newChatCmd(opts),
		newValidateCmd(opts),
		newProfilesCmd(opts),
		newVersionCmd(),
	)
	return root
}

func defaultConfigPath() string {
	if p := os.Getenv("GRAPH_FLEET_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "graph-fleet "+version)
		},
	}
}
