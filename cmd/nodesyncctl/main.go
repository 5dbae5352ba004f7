package main

import (
	"log"

	"github.com/spf13/cobra"

	nodescli "github.com/amirimatin/go-nodesync/pkg/cli"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "nodesyncctl",
		Short:         "go-nodesync fleet membership CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Attach all coordination commands from pkg/cli for reuse in services
	nodescli.AddAll(root)
	return root
}
