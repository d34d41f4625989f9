package command

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"tagserver/cmd/cli/command/client"

	"github.com/spf13/cobra"
)

// udpCmd sends one request over the UDP frontend
var udpCmd = &cobra.Command{
	Use:   "udp <host> <port> <request>",
	Short: "Send a request as a single datagram",
	Long: `Send one request to the server's UDP frontend and print the reply.

The UDP frontend speaks the same tags as TCP, one message per datagram:
  tagcli udp localhost 9000 '<echo>Hello</echo>'
  tagcli udp localhost 9000 '<loadavg/>'`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid port number %q", args[1])
		}

		c := client.NewUDPClient(net.JoinHostPort(args[0], strconv.FormatUint(port, 10)), timeout)
		if err := c.Connect(context.Background()); err != nil {
			return err
		}
		defer c.Disconnect()

		resp, err := c.Request(args[2])
		if err != nil {
			return err
		}
		printResponse(cmd.OutOrStdout(), resp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(udpCmd)
}
