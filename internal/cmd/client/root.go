package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the buildlog client.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "buildlog",
		Short: "buildlog client commands",
	}
	for _, c := range Commands(baseURL) {
		root.AddCommand(c)
	}
	return root
}

// Commands returns the client command groups so a parent binary can mount
// them next to its own.
func Commands(baseURL BaseURLFunc) []*cobra.Command {
	return []*cobra.Command{
		NewDumpCommand(),
		NewBuildCommand(baseURL),
	}
}
