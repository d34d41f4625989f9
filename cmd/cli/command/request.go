package command

import (
	"strings"

	"tagserver/cmd/cli/command/client"

	"github.com/spf13/cobra"
)

// echoCmd sends one echo request
var echoCmd = &cobra.Command{
	Use:   "echo <host> <port> <text>...",
	Short: "Send <echo>TEXT</echo> and print the reply",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[2:], " ")
		return sendOne(cmd, args[0], args[1], "<echo>"+text+"</echo>")
	},
}

// loadavgCmd asks for the server load averages
var loadavgCmd = &cobra.Command{
	Use:   "loadavg <host> <port>",
	Short: "Print the server's 1, 5 and 15 minute load averages",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne(cmd, args[0], args[1], "<loadavg/>")
	},
}

// sendCmd sends a raw request, useful for poking at malformed input
var sendCmd = &cobra.Command{
	Use:   "send <host> <port> <request>",
	Short: "Send a raw request as-is",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne(cmd, args[0], args[1], args[2])
	},
}

func sendOne(cmd *cobra.Command, host, port, request string) error {
	return withClient(cmd, host, port, func(c *client.TCPClient) error {
		resp, err := c.Request(request)
		if err != nil {
			return err
		}
		printResponse(cmd.OutOrStdout(), resp)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(loadavgCmd)
	rootCmd.AddCommand(sendCmd)
}
