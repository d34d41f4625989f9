package command

// root.go defines the root command for the tagcli application.
// set up the global flags here.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"tagserver/cmd/cli/command/client"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var timeout time.Duration // Global flag for dial/read/write timeout

// ReferenceScript is the request sequence the root command replays
var ReferenceScript = []string{
	"<echo>HelloWorld</echo>",
	"<echo>HelloWorld</echo>\n",
	"<echo>sfglk</echo>",
	"",
	"\n",
	"<echo>New Line At End</echo>\n",
	"<loadavg/>",
	"<echo> Hello World <echo>",
	"<echo></echo>",
}

// rootCmd represents the base command; with a host and port it replays
// ReferenceScript against the server
var rootCmd = &cobra.Command{
	Use:   "tagcli <IP Address or Server Host Name> <Port Number>",
	Short: "tagcli - client for the tag server",
	Long: `tagcli talks to a tag server over TCP. Run with a host and port to replay
the reference request sequence, or use a subcommand to send a single request:
- echo     send <echo>TEXT</echo>
- loadavg  ask for the server's 1/5/15 minute load averages
- send     send a raw request as-is
- udp      send a raw request as one datagram to the UDP frontend`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, args[0], args[1], func(c *client.TCPClient) error {
			for _, request := range ReferenceScript {
				resp, err := c.Request(request)
				if errors.Is(err, client.ErrEmptyRequest) {
					fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", err)
					continue
				}
				if err != nil {
					return err
				}
				printResponse(cmd.OutOrStdout(), resp)
			}
			return nil
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "dial, send and receive timeout")
	rootCmd.SilenceErrors = true
}

// withClient connects to host:port, runs fn and always disconnects
func withClient(cmd *cobra.Command, host, port string, fn func(c *client.TCPClient) error) error {
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("invalid port number %q", port)
	}

	c := client.NewTCPClient(net.JoinHostPort(host, port), timeout)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Disconnect()
	return fn(c)
}

// printResponse prints the server reply, red for error replies
func printResponse(w io.Writer, resp string) {
	paint := color.New(color.FgGreen)
	if strings.HasPrefix(resp, "<error>") {
		paint = color.New(color.FgRed)
	}
	fmt.Fprint(w, "Response from server: ")
	paint.Fprintln(w, resp)
}
