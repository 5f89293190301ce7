package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/KaramelBytes/dataloom-cli/internal/agent"
	"github.com/KaramelBytes/dataloom-cli/internal/ai"
	"github.com/KaramelBytes/dataloom-cli/internal/dataset"
	"github.com/KaramelBytes/dataloom-cli/internal/prompt"
	"github.com/KaramelBytes/dataloom-cli/internal/render"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
	"github.com/spf13/cobra"
)

var (
	askPrintPrompt bool
	askShowCode    bool
	askFormat      string
	askPlotDir     string
	askMaxRows     int
	askLogPath     string
	askDelimiter   string
	askTimeoutSec  int
)

var askCmd = &cobra.Command{
	Use:   "ask <file> <question...>",
	Short: "Ask one question about a CSV or ZIP and print the answer",
	Example: `  dataloom ask sales.csv "What is the average amount per region?"
  dataloom ask sales.csv "Plot amount by month" --plot-dir ./charts
  dataloom ask sales.csv "Top 5 customers" --format csv --show-code`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args[1:], " "))
		if question == "" {
			return fmt.Errorf("question cannot be empty")
		}
		a, err := newSession()
		if err != nil {
			return err
		}
		if _, err := loadIntoSession(a, args[0], askDelimiter); err != nil {
			return err
		}

		timeoutSec := askTimeoutSec
		if timeoutSec <= 0 {
			timeoutSec = 180
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
		defer cancel()

		out := cmd.OutOrStdout()
		ans := a.Ask(ctx, question)
		if askPrintPrompt {
			printPrompt(out, ans.Prompt)
		}
		if askShowCode && ans.Code != "" {
			fmt.Fprintf(out, "\n--show-code: generated script --\n%s\n\n", ans.Code)
		}
		if askLogPath != "" {
			if err := exportLog(a, askLogPath); err != nil {
				return err
			}
		}
		if e, ok := ans.Payload.(result.Error); ok {
			if hint := modelHint(ans.Err, cfg.LLM.Provider, cfg.LLM.ModelName); hint != "" {
				return fmt.Errorf("%s\n  💡 %s", e.Message, hint)
			}
			return errors.New(e.Message)
		}
		return render.Payload(out, ans.Payload, render.Options{
			Format:  askFormat,
			MaxRows: askMaxRows,
			PlotDir: askPlotDir,
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askPrintPrompt, "print-prompt", false, "print the prompt sent to the model with a token breakdown")
	askCmd.Flags().BoolVar(&askShowCode, "show-code", false, "print the script the model wrote")
	askCmd.Flags().StringVar(&askFormat, "format", render.FormatTable, "output format: table|json|csv|markdown")
	askCmd.Flags().StringVar(&askPlotDir, "plot-dir", "", "write chart answers as HTML files into this directory")
	askCmd.Flags().IntVar(&askMaxRows, "max-rows", 50, "truncate table answers to this many rows (0 = all)")
	askCmd.Flags().StringVar(&askLogPath, "log", "", "export the interaction log as JSON Lines to this path")
	askCmd.Flags().StringVar(&askDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | '|' (default: detect)")
	askCmd.Flags().IntVar(&askTimeoutSec, "timeout-sec", 180, "overall timeout for the question in seconds")
}

// loadIntoSession reads a local file into the session and prints nothing;
// callers decide how to present the load.
func loadIntoSession(a *agent.Agent, path, delimiter string) (*dataset.Dataset, error) {
	delim, err := parseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	opts := agent.OptionsFromConfig(cfg, logger).Dataset
	opts.Delimiter = delim
	ds, err := loadDataFile(path, opts)
	if err != nil {
		return nil, err
	}
	a.Use(ds)
	return ds, nil
}

func printPrompt(w io.Writer, p string) {
	if p == "" {
		return
	}
	fmt.Fprintln(w, "\n--print-prompt: sending the following prompt --")
	fmt.Fprintln(w, p)
	b := prompt.Breakdown(p)
	parts := make([]string, 0, len(prompt.Sections))
	for _, s := range prompt.Sections {
		if n, ok := b[s]; ok {
			parts = append(parts, fmt.Sprintf("%s≈%d", strings.ToLower(s), n))
		}
	}
	fmt.Fprintf(w, "Tokens: total≈%d (%s)\n\n", prompt.EstimateTokens(p), strings.Join(parts, ", "))
}

func exportLog(a *agent.Agent, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if err := a.Log().Export(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// modelHint turns a classified model failure into a next step for the user.
func modelHint(err error, provider, model string) string {
	if err == nil {
		return ""
	}
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.As(err, &unreach):
		if provider == ai.ProviderOllama {
			return fmt.Sprintf("Ollama not reachable at %s. Ensure Ollama is running and llm.ollama_host is correct.", unreach.Host)
		}
		return "Endpoint unreachable. Check your network and llm.base_url."
	case errors.As(err, &authErr):
		return "Authentication failed: set GEMINI_API_KEY, pass --api-key or run 'dataloom config set api_key <key>'."
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Sprintf("Rate limited, try again in ~%ds.", int(rlErr.RetryAfter.Seconds()))
		}
		return "Rate limited by the provider, please retry."
	case errors.As(err, &nfErr):
		if provider == ai.ProviderOllama {
			return fmt.Sprintf("Local model not available. Install it with 'ollama pull %s' or choose another model.", model)
		}
		return fmt.Sprintf("Model %q not found. Check llm.model_name.", model)
	case errors.As(err, &brErr):
		return "Request rejected. Try lowering llm.max_output_tokens or using a smaller file."
	case errors.As(err, &qErr):
		return "Quota or billing issue. Check your provider account."
	case errors.As(err, &sErr):
		return "The provider appears unavailable (server error). Please retry later."
	case errors.Is(err, context.DeadlineExceeded):
		return "The model did not answer in time. Raise --timeout-sec or llm.http_timeout_sec."
	}
	return ""
}
