package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files under the root",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "List images with their caption files",
	Args:  cobra.NoArgs,
	RunE:  runPairs,
}

var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a caption file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func runList(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	listing, err := rt.service.List(cmd.Context())
	if err != nil {
		return err
	}
	files := listing.Files
	sort.Strings(files)

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		newEmitter(out).emit("files", map[string]interface{}{
			"root":      rt.state.Root(),
			"count":     len(files),
			"files":     files,
			"truncated": listing.Truncated,
		})
		return nil
	}
	for _, f := range files {
		fmt.Fprintln(out, f)
	}
	if !globalFlags.Quiet {
		st := newStyles(cmd.ErrOrStderr(), false)
		summary := fmt.Sprintf("%d files under %s", len(files), rt.state.Root())
		if listing.Truncated {
			summary += fmt.Sprintf(" (stopped at list.max_entries=%d)", rt.cfg.List.MaxEntries)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), st.dim(summary))
	}
	return nil
}

func runPairs(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	pairs, err := rt.service.Pairs(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		newEmitter(out).emit("pairs", map[string]interface{}{
			"root":  rt.state.Root(),
			"count": len(pairs),
			"pairs": pairs,
		})
		return nil
	}
	for _, p := range pairs {
		fmt.Fprintf(out, "%s\t%s\n", p.Image, p.CaptionFile)
	}
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	content, err := rt.service.ReadCaption(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		newEmitter(out).emit("caption", map[string]interface{}{"path": args[0], "content": content})
		return nil
	}
	fmt.Fprint(out, content)
	return nil
}

// openRuntime loads config and builds a runtime without a folder picker.
func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newRuntime(cmd, cfg, nil)
}
