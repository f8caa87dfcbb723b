package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/openfga/reactive/internal/build"
)

// NewVersionCommand returns the command to get the reactive version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the reactive version",
		Long:  "Return the reactive version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(_ *cobra.Command, _ []string) error {
	log.Printf("reactive Version %s Date %s commit id %s ", build.Version, build.Date, build.Commit)
	return nil
}
