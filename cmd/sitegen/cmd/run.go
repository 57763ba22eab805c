package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/service/workflow"
	"github.com/iamxurulin/xu-AI-Zero/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Generate a website from a description",
	Long: `Run the full generation workflow for one prompt. Generated code is
streamed to stdout as it arrives; progress goes to stderr.

Examples:
  # Let the classifier pick the generation type
  sitegen run "A landing page for a coffee shop"

  # Force a Vue project and continue an earlier session
  sitegen run --type structured_project --session shop "Add a menu page"

  # Read the prompt from a file
  sitegen run --file prompt.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runType     string
	runSession  string
	runFile     string
	runNoStream bool
	runOutput   string
	runNoColor  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runType, "type", "t", "",
		"generation type (plain_page, multi_file, structured_project)")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "",
		"session key; runs with the same key share history")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "",
		"read the prompt from a file")
	runCmd.Flags().BoolVar(&runNoStream, "no-stream", false,
		"do not print generated code while it streams")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "",
		"progress format (plain, json, quiet); default from SITEGEN_OUTPUT")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "disable colored progress")
}

func runPrompt(args []string) (string, error) {
	if runFile != "" {
		data, err := os.ReadFile(runFile) // #nosec G304 -- user-selected prompt file
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return "", fmt.Errorf("a prompt argument or --file is required")
}

// progressOutput renders progress on stderr so stdout carries only code.
func progressOutput(cmd *cobra.Command) *tui.Output {
	errOut := cmd.ErrOrStderr()
	fd := -1
	if f, ok := errOut.(*os.File); ok {
		fd = int(f.Fd())
	}
	d := tui.NewDetector(fd).NoColor(runNoColor)
	if runOutput != "" {
		d.ForceMode(tui.ParseOutputMode(runOutput))
	}
	return tui.NewOutput(errOut, d.Detect(), d.ShouldUseColor())
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt, err := runPrompt(args)
	if err != nil {
		return err
	}
	req := workflow.Request{Prompt: prompt, SessionKey: runSession}
	if runType != "" {
		t, err := core.ParseGenerationType(runType)
		if err != nil {
			return err
		}
		req.GenerationType = t
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if !runNoStream {
		// One run per process, so every chunk on the bus belongs to it.
		chunks := a.bus.SubscribePriority(events.TypeGenerationChunk)
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			for ev := range chunks {
				if c, ok := ev.(events.GenerationChunkEvent); ok {
					fmt.Fprint(cmd.OutOrStdout(), c.Text)
				}
			}
		}()
		defer func() {
			a.bus.Unsubscribe(chunks)
			<-printed
		}()
	}

	return progressOutput(cmd).Render(a.workflow.RunObservable(ctx, req))
}
