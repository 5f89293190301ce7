package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dataloom-cli/internal/agent"
	"github.com/KaramelBytes/dataloom-cli/internal/render"
	"github.com/KaramelBytes/dataloom-cli/internal/result"
)

var (
	chatFormat    string
	chatPlotDir   string
	chatMaxRows   int
	chatShowCode  bool
	chatDelimiter string
)

var chatCmd = &cobra.Command{
	Use:   "chat [file]",
	Short: "Start an interactive session and ask questions about your data",
	Example: `  dataloom chat sales.csv
  dataloom chat --plot-dir ./charts
  # then type a question, or .help for commands`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newSession()
		if err != nil {
			return err
		}
		s := &chatSession{
			agent:     a,
			out:       cmd.OutOrStdout(),
			errOut:    cmd.ErrOrStderr(),
			showCode:  chatShowCode,
			delimiter: chatDelimiter,
			render:    render.Options{Format: chatFormat, MaxRows: chatMaxRows, PlotDir: chatPlotDir},
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "dataloom> ",
			HistoryFile:     chatHistoryFile(),
			AutoComplete:    chatCompleter(),
			InterruptPrompt: "^C",
			EOFPrompt:       ".quit",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize REPL: %w", err)
		}
		defer func() { _ = rl.Close() }()

		s.banner()
		if len(args) == 1 {
			s.load(args[0])
		} else {
			_, _ = fmt.Fprintln(s.out, "No data loaded yet. Use .load <file.csv|file.zip> to start.")
		}
		_, _ = fmt.Fprintln(s.out)
		return s.run(cmd.Context(), rl)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatFormat, "format", render.FormatTable, "answer format: table|json|csv|markdown")
	chatCmd.Flags().StringVar(&chatPlotDir, "plot-dir", "", "write chart answers as HTML files into this directory")
	chatCmd.Flags().IntVar(&chatMaxRows, "max-rows", 50, "truncate table answers to this many rows (0 = all)")
	chatCmd.Flags().BoolVar(&chatShowCode, "show-code", false, "print the script behind each answer")
	chatCmd.Flags().StringVar(&chatDelimiter, "delimiter", "", "CSV delimiter for loaded files (default: detect)")
}

type lineReader interface {
	Readline() (string, error)
}

// chatSession is the REPL state. The agent is swapped on .reset.
type chatSession struct {
	agent     *agent.Agent
	out       io.Writer
	errOut    io.Writer
	render    render.Options
	showCode  bool
	delimiter string
}

func (s *chatSession) run(ctx context.Context, rl lineReader) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if quit := s.dot(line); quit {
				return nil
			}
			continue
		}
		s.ask(ctx, line)
		_, _ = fmt.Fprintln(s.out)
	}
}

func (s *chatSession) banner() {
	title := cfg.UI.AppTitle
	if title == "" {
		title = "DataLoom"
	}
	_, _ = fmt.Fprintf(s.out, "%s · %s/%s\n", title, cfg.LLM.Provider, cfg.LLM.ModelName)
	_, _ = fmt.Fprintln(s.out, "Type a question about your data, .help for commands, .quit to exit")
}

func (s *chatSession) load(path string) {
	ds, err := loadIntoSession(s.agent, path, s.delimiter)
	if err != nil {
		_, _ = fmt.Fprintf(s.errOut, "✗ Error: %v\n", err)
		return
	}
	_, _ = fmt.Fprintf(s.out, "✓ %s\n", ds.Message())
	pa, err := s.agent.PreAnalysis()
	if err != nil {
		_, _ = fmt.Fprintf(s.errOut, "✗ Error: %v\n", err)
		return
	}
	render.Summary(s.out, pa.Summary, pa.Filename)
}

func (s *chatSession) ask(ctx context.Context, question string) {
	ans := s.agent.Ask(ctx, question)
	if s.showCode && ans.Code != "" {
		_, _ = fmt.Fprintf(s.out, "```python\n%s\n```\n", ans.Code)
	}
	if err := render.Payload(s.out, ans.Payload, s.render); err != nil {
		_, _ = fmt.Fprintf(s.errOut, "✗ Error: %v\n", err)
		return
	}
	if _, isErr := ans.Payload.(result.Error); isErr {
		if hint := modelHint(ans.Err, cfg.LLM.Provider, cfg.LLM.ModelName); hint != "" {
			_, _ = fmt.Fprintf(s.out, "  💡 %s\n", hint)
		}
	}
}

// dot runs a REPL command and reports whether the session should end.
func (s *chatSession) dot(line string) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		printChatHelp(s.out)
	case ".load":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(s.errOut, "Usage: .load <file.csv|file.zip>")
			return false
		}
		s.load(strings.Join(parts[1:], " "))
	case ".schema":
		sum := s.agent.Summary()
		if sum == nil {
			_, _ = fmt.Fprintln(s.errOut, "✗ Error: no data loaded")
			return false
		}
		render.Summary(s.out, sum, s.agent.Dataset().Name())
	case ".suggest":
		sum := s.agent.Summary()
		if sum == nil {
			_, _ = fmt.Fprintln(s.errOut, "✗ Error: no data loaded")
			return false
		}
		render.Suggestions(s.out, sum.Suggested)
	case ".log":
		if len(parts) >= 3 && parts[1] == "save" {
			if err := exportLog(s.agent, parts[2]); err != nil {
				_, _ = fmt.Fprintf(s.errOut, "✗ Error: %v\n", err)
				return false
			}
			_, _ = fmt.Fprintf(s.out, "✓ Log written to %s\n", parts[2])
			return false
		}
		render.History(s.out, s.agent.Log().All())
	case ".code":
		s.showCode = !s.showCode
		state := "off"
		if s.showCode {
			state = "on"
		}
		_, _ = fmt.Fprintf(s.out, "Show code: %s\n", state)
	case ".reset":
		s.agent = s.agent.Reset()
		_, _ = fmt.Fprintln(s.out, "✓ Session reset. Data and history cleared.")
	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}

func printChatHelp(w io.Writer) {
	help := `
Commands:
  .help             Show this help message
  .load <file>      Load a .csv or .zip (replaces the current data)
  .schema           Show the schema overview of the loaded data
  .suggest          Show suggested starter questions
  .log              List this session's interactions
  .log save <path>  Export the interactions as JSON Lines
  .code             Toggle printing the script behind each answer
  .reset            Clear data and history and start over
  .quit / .exit     Exit

Anything else is sent to the model as a question about the loaded data.
`
	_, _ = fmt.Fprintln(w, help)
}

func chatHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dataloom", "chat_history")
}

func chatCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".load", readline.PcItemDynamic(dataFilesInDir)),
		readline.PcItem(".schema"),
		readline.PcItem(".suggest"),
		readline.PcItem(".log", readline.PcItem("save")),
		readline.PcItem(".code"),
		readline.PcItem(".reset"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

// dataFilesInDir lists loadable files in the working directory for completion.
func dataFilesInDir(string) []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		lower := strings.ToLower(e.Name())
		if !e.IsDir() && (strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".zip")) {
			names = append(names, e.Name())
		}
	}
	return names
}
