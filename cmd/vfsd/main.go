// Command vfsd is the vector storage daemon entrypoint. Its CLI contract
// intentionally stays close to the source's: the daemon's first positional
// argument is ignored, its second is the listen port.
//
// Grounded on the teacher's cmd/server/main invocation shape, built on
// github.com/spf13/cobra instead of raw os.Args indexing, and
// original_source/vfs/src/main.rs (print_welcome_message, DEFAULT_PORT,
// args.get(2) for the port).
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shibudb/vfsdb/internal/config"
	"github.com/shibudb/vfsdb/internal/protocol"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vfsd",
		Short: "Vector File Store daemon",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [ignored] [port]",
		Short: "Start listening for vector storage requests",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			port := cfg.DefaultPort
			if len(args) >= 2 {
				p, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid port %q: %w", args[1], err)
				}
				port = p
			}
			printWelcome()
			srv := protocol.NewServer(cfg)
			return protocol.ListenAndServe(fmt.Sprintf(":%d", port), srv)
		},
	}
}

func printWelcome() {
	fmt.Println("vfsd: vector file store daemon starting")
}
