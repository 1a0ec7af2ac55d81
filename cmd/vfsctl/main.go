// Command vfsctl is a minimal line-protocol client for vfsd: it forwards
// request lines typed on stdin verbatim and prints the daemon's responses.
//
// Adapted from the teacher's cmd/client/main.go, trimmed to the bare
// forward-and-print loop the line protocol in spec §4.6 needs.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "vfsctl",
		Short: "Talk to a vfsd daemon over its line protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:9001", "daemon address")
	return cmd
}

func runClient(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	stdin := bufio.NewScanner(os.Stdin)
	resp := bufio.NewReader(conn)

	// The daemon answers only once a request's blank terminator line arrives,
	// so a response is read after forwarding the blank line that ends a request.
	pending := false
	for stdin.Scan() {
		line := stdin.Text()
		fmt.Fprintln(conn, line)
		if line != "" {
			pending = true
			continue
		}
		if !pending {
			continue
		}
		pending = false

		status, err := resp.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read response status: %w", err)
		}
		body, err := resp.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		fmt.Print(status, body)
		resp.ReadString('\n') // trailing blank line
	}
	return stdin.Err()
}
