package cli

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"capserve/internal/config"
)

var countCmd = &cobra.Command{
	Use:   "count [text...]",
	Short: "Count tokens in each text",
	Long:  "Count tokens in each argument. Without arguments every stdin line is counted separately.",
	RunE:  runCount,
}

var countTokenizer string

func init() {
	countCmd.Flags().StringVar(&countTokenizer, "tokenizer", "", "cl100k_base|p50k_base|r50k_base|words (default from config)")
}

func runCount(cmd *cobra.Command, args []string) error {
	texts := args
	if len(texts) == 0 {
		lines, err := readLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
		texts = lines
	}

	cfg, err := loadConfig(func(c *config.Config) {
		if countTokenizer != "" {
			c.Tokenizer.Kind = countTokenizer
		}
	})
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	counts := rt.service.CountTokens(texts)

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		total := 0
		for _, n := range counts {
			total += n
		}
		newEmitter(out).emit("token_counts", map[string]interface{}{
			"tokenizer": cfg.Tokenizer.Kind,
			"counts":    counts,
			"total":     total,
		})
		return nil
	}
	for i, n := range counts {
		if globalFlags.Quiet {
			fmt.Fprintln(out, n)
			continue
		}
		fmt.Fprintf(out, "%d\t%s\n", n, texts[i])
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}
