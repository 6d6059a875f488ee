package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatdock/chatdock/internal/observability"
	"github.com/chatdock/chatdock/internal/proxy"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Proxy utilities.",
}

var proxyCheckCmd = &cobra.Command{
	Use:   "check <proxy-url>",
	Short: "Probe connectivity through a proxy.",
	Long: `Fetches the configured check URL through the given proxy and reports
status, latency and the response body. Supports http and socks5 proxies,
with credentials embedded in the URL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Proxy.CheckTimeout)
		defer cancel()

		res, err := proxy.Probe(ctx, args[0], cfg.Proxy.CheckURL, observability.GetLogger())
		if err != nil {
			return err
		}
		fmt.Printf("status:  %d\n", res.StatusCode)
		fmt.Printf("latency: %s\n", res.Latency.Round(time.Millisecond))
		if res.Body != "" {
			fmt.Printf("body:    %s\n", res.Body)
		}
		return nil
	},
}

func init() {
	proxyCmd.AddCommand(proxyCheckCmd)
	rootCmd.AddCommand(proxyCmd)
}
