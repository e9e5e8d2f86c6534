package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/assetbundle/cli/client"
	"github.com/fluxbase-eu/assetbundle/cli/output"
	"github.com/fluxbase-eu/assetbundle/cli/util"
)

// isInteractive is replaced in tests
var isInteractive = util.IsInteractive

var (
	serverURL   string
	debugParam  string
	remoteYes   bool
	remoteDebug bool
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect and administer a running assetbundle server",
	Long: `Talk to a running assetbundle server. The server URL comes from --server
or the BUNDLECTL_SERVER environment variable.

Cache administration is only accepted from localhost unless the server
runs with server.remote_admin enabled.`,
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the named bundles registered on the server",
	Args:  cobra.NoArgs,
	RunE:  runRemoteList,
}

var remoteTagCmd = &cobra.Command{
	Use:   "tag KIND NAME",
	Short: "Render the tag of a named bundle on the server",
	Long: `Render the tag of a named bundle the way a page request would. Without
--debug the server default decides the mode.

Examples:
  bundlectl remote tag script site
  bundlectl remote tag css site --debug`,
	Args: cobra.ExactArgs(2),
	RunE: runRemoteTag,
}

var remoteClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the server's bundle cache and rebuild its manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRebuild(cmd, "Clear the bundle cache of", (*client.Client).ClearCache)
	},
}

var remoteReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the server read its bundle manifest again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRebuild(cmd, "Reload the bundle manifest of", (*client.Client).Reload)
	},
}

var remoteHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the health of the server's cache and storage",
	Args:  cobra.NoArgs,
	RunE:  runRemoteHealth,
}

func init() {
	remoteCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "assetbundle server URL")
	remoteCmd.PersistentFlags().StringVar(&debugParam, "debug-param", "debugMode", "query parameter the server reads the debug flag from")

	remoteTagCmd.Flags().BoolVar(&remoteDebug, "debug", false, "request debug mode")
	remoteClearCmd.Flags().BoolVarP(&remoteYes, "yes", "y", false, "skip confirmation")
	remoteReloadCmd.Flags().BoolVarP(&remoteYes, "yes", "y", false, "skip confirmation")

	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteTagCmd)
	remoteCmd.AddCommand(remoteClearCmd)
	remoteCmd.AddCommand(remoteReloadCmd)
	remoteCmd.AddCommand(remoteHealthCmd)
}

// newClient creates a client for the server named by --server or
// BUNDLECTL_SERVER.
func newClient() (*client.Client, error) {
	base := serverURL
	if base == "" {
		base = os.Getenv("BUNDLECTL_SERVER")
	}
	if base == "" {
		return nil, errors.New("no server given - use --server or set BUNDLECTL_SERVER")
	}
	return client.NewClient(base, client.WithDebug(verbose), client.WithDebugParam(debugParam)), nil
}

func runRemoteList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	bundles, err := c.ListBundles(cmd.Context())
	if err != nil {
		return err
	}
	sort.Slice(bundles, func(i, j int) bool {
		if bundles[i].Kind != bundles[j].Kind {
			return bundles[i].Kind < bundles[j].Kind
		}
		return bundles[i].Name < bundles[j].Name
	})

	if formatter.Format != output.FormatTable {
		return formatter.Print(bundles)
	}
	data := output.TableData{Headers: []string{"NAME", "KIND", "OUTPUT", "MODE"}}
	for _, b := range bundles {
		mode := b.Mode
		if mode == "" {
			mode = "auto"
		}
		data.Rows = append(data.Rows, []string{b.Name, b.Kind, b.OutputKey, mode})
	}
	return formatter.PrintTable(data)
}

func runRemoteTag(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var debug *bool
	if cmd.Flags().Changed("debug") {
		debug = util.BoolPtr(remoteDebug)
	}

	tag, err := c.Tag(cmd.Context(), args[0], args[1], debug)
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(map[string]string{"kind": args[0], "name": args[1], "tag": tag})
	}
	formatter.PrintSuccess(tag)
	return nil
}

func runRebuild(cmd *cobra.Command, action string, call func(*client.Client, context.Context) ([]client.Result, error)) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	if !remoteYes {
		if !isInteractive() {
			return errors.New("confirmation required - rerun with --yes")
		}
		ok, err := util.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("%s %s?", action, c.BaseURL), false)
		if err != nil {
			return err
		}
		if !ok {
			formatter.PrintSuccess("Aborted")
			return nil
		}
	}

	results, err := call(c, cmd.Context())
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(results)
	}
	data := output.TableData{Headers: []string{"NAME", "KIND", "OUTPUT", "TAG"}}
	for _, r := range results {
		data.Rows = append(data.Rows, []string{r.Name, r.Kind, r.Output, r.Tag})
	}
	if err := formatter.PrintTable(data); err != nil {
		return err
	}
	formatter.PrintSuccess(fmt.Sprintf("Rebuilt %d bundle(s)", len(results)))
	return nil
}

func runRemoteHealth(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	health, err := c.Health(cmd.Context())
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(health)
	}

	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	data := output.TableData{Headers: []string{"SERVICE", "STATUS", "LATENCY", "MESSAGE"}}
	for _, name := range names {
		s := health.Services[name]
		data.Rows = append(data.Rows, []string{name, s.Status, fmt.Sprintf("%dms", s.Latency), s.Message})
	}
	if err := formatter.PrintTable(data); err != nil {
		return err
	}
	if health.Status != "healthy" {
		return fmt.Errorf("server is %s", health.Status)
	}
	return nil
}
