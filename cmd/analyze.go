package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/dataloom-cli/internal/agent"
	"github.com/KaramelBytes/dataloom-cli/internal/analysis"
	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/render"
	"github.com/KaramelBytes/dataloom-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	anaOutputPath string
	anaFormat     string
	anaDelimiter  string
	anaSuggest    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Load a CSV or ZIP and print its schema overview (no model call)",
	Example: `  dataloom analyze sales.csv
  dataloom analyze export.zip --format json
  dataloom analyze sales.csv --delimiter ';' --output sales.summary.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := agent.OptionsFromConfig(cfg, logger)
		delim, err := parseDelimiter(anaDelimiter)
		if err != nil {
			return err
		}
		opts.Dataset.Delimiter = delim
		if cmd.Flags().Changed("suggest") {
			opts.Summary.NumSuggestedQueries = anaSuggest
		}

		ds, err := loadDataFile(args[0], opts.Dataset)
		if err != nil {
			return err
		}
		s := analysis.Summarize(ds.Frame, opts.Summary)
		out := cmd.OutOrStdout()

		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, []byte(s.Markdown(ds.Name()))); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}

		switch strings.ToLower(anaFormat) {
		case "json":
			b, err := utils.PrettyJSON(struct {
				Message string `json:"message"`
				*analysis.Summary
			}{ds.Message(), s})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
		case "markdown", "md":
			fmt.Fprint(out, s.Markdown(ds.Name()))
		case "table", "":
			fmt.Fprintln(out, ds.Message())
			render.Summary(out, s, ds.Name())
		default:
			return fmt.Errorf("unsupported --format: %s (use table|json|markdown)", anaFormat)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "write a Markdown report to this path instead of stdout")
	analyzeCmd.Flags().StringVar(&anaFormat, "format", "table", "stdout format: table|json|markdown")
	analyzeCmd.Flags().StringVar(&anaDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | '|' (default: detect)")
	analyzeCmd.Flags().IntVar(&anaSuggest, "suggest", 0, "number of suggested questions (overrides analysis.num_suggested_queries)")
}

// loadDataFile reads a local upload, refusing oversized files before they
// are read into memory.
func loadDataFile(path string, opt dataset.Options) (*dataset.Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if limit := int64(opt.MaxFileSizeMB) << 20; limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d MB", dataset.ErrFileTooLarge, path, info.Size(), opt.MaxFileSizeMB)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return dataset.Load(filepath.Base(path), raw, opt)
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case ";":
		return ';', nil
	case "\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	default:
		return 0, fmt.Errorf("unsupported --delimiter: %s", s)
	}
}
