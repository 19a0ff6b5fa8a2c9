package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/BDNK1/chatflow/cli/internal/config"
	httpplugin "github.com/BDNK1/chatflow/plugins/http"
	"github.com/BDNK1/chatflow/runtime"
	flowyaml "github.com/BDNK1/chatflow/runtime/engine/yaml"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	playBackend string
	playDelay   time.Duration
	playVerbose bool
)

var playCmd = &cobra.Command{
	Use:   "play <flow-file>",
	Short: "Walk through a flow in the terminal",
	Long: `Play runs a flow the way the admin preview does: bot prompts are printed,
answers are read from stdin, and option steps accept the option number.

Without --backend, apiCall steps that have an endpoint fail with the apology message.

Example:
  chatflow play flows/support.yaml
  chatflow play flows/support.yaml --backend http://localhost:3000 --delay 0
`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playBackend, "backend", "", "Base URL for apiCall endpoints")
	playCmd.Flags().DurationVar(&playDelay, "delay", 0, "Typing delay between messages")
	playCmd.Flags().BoolVarP(&playVerbose, "verbose", "v", false, "Log transitions to stderr")
}

func runPlay(cmd *cobra.Command, args []string) error {
	level := "warn"
	if playVerbose {
		level = "debug"
	}
	l := config.LogConfig{Level: level, Format: "text"}.Logger(cmd.ErrOrStderr())

	flow, err := flowyaml.NewFlowLoader().Load(args[0])
	if err != nil {
		return err
	}
	report := runtime.ValidateFlowWith(&flow, flowyaml.NewExpressionEvaluator())
	printReport(cmd.ErrOrStderr(), args[0], report)
	if !report.OK() {
		return report.Err()
	}

	cfg := runtime.DefaultConfig()
	cfg.TypingDelay = playDelay

	opts := []runtime.Option{
		runtime.WithEvaluator(flowyaml.NewExpressionEvaluator()),
		runtime.WithTranscriptSink(runtime.LogSink{L: l}),
	}
	if playBackend != "" {
		backend := httpplugin.Config{BaseURL: playBackend}
		if err := runtime.InitializeConfig(&backend, nil); err != nil {
			return err
		}
		opts = append(opts, runtime.WithGateway(httpplugin.NewClient(backend, l)))
	}

	engine := runtime.NewEngine(l, cfg, opts...)
	defer engine.Close(context.Background())

	token := "play-" + uuid.New().String()
	session := engine.NewSession(runtime.ChatSession{SessionToken: token, SessionID: token})
	defer session.Close()

	return play(cmd.Context(), session, &flow, cmd.InOrStdin(), cmd.OutOrStdout())
}

// play drives a session from a line-oriented reader until the flow ends or input runs out.
func play(ctx context.Context, session *runtime.Session, flow *runtime.ChatFlow, in io.Reader, out io.Writer) error {
	res := session.Load(ctx, flow)
	printMessages(out, res.Messages)

	scanner := bufio.NewScanner(in)
	for !finished(res.Outcome) {
		snap := session.Snapshot()
		if snap.CurrentStep == nil {
			return nil
		}
		step := *snap.CurrentStep
		fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		answer := resolveAnswer(step, strings.TrimSpace(scanner.Text()))
		answer = runtime.FormatInput(step, answer)
		if check := runtime.CheckInput(step, answer); !check.Valid && check.Message != "" {
			fmt.Fprintf(out, "  (%s)\n", check.Message)
		}

		res = session.Submit(ctx, answer)
		// the user's own message is already on screen
		printMessages(out, botMessages(res.Messages))
	}
	return nil
}

func finished(o runtime.Outcome) bool {
	return o == runtime.OutcomeTerminal || o == runtime.OutcomeUnavailable || o == runtime.OutcomeClosed
}

// resolveAnswer maps an option number to the option text on options steps.
func resolveAnswer(step runtime.ChatStep, text string) string {
	if step.StepType != runtime.StepTypeOptions {
		return text
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(step.Options) {
		return text
	}
	return step.Options[n-1]
}

func botMessages(msgs []runtime.Message) []runtime.Message {
	var out []runtime.Message
	for _, m := range msgs {
		if m.Sender == runtime.SenderBot {
			out = append(out, m)
		}
	}
	return out
}

func printMessages(w io.Writer, msgs []runtime.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "bot: %s\n", m.Text)
		for i, opt := range m.Options {
			fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
		}
	}
}

