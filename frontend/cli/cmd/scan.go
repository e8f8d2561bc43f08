package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/furisto/scout/backend/mailtm"
	"github.com/furisto/scout/backend/model"
	"github.com/furisto/scout/backend/notify"
	"github.com/furisto/scout/backend/sandbox"
	"github.com/furisto/scout/backend/scan"
)

const defaultUserPrompt = "I need you to do a full vulnerability scan of {target_url}, " +
	"you must critically analyse the code and identify every single vulnerability, " +
	"for identified vulnerabilities a PoC must be provided, focus on critical vulnerabilities, " +
	"i m only insterested in real world vulnerabilities, not theoretical ones"

type scanOptions struct {
	TargetsFile string
	Target      string
	MaxRounds   int
	Parallel    int
	Provider    string
	Model       string
	Interpreter string
	Effort      string
	OutputDir   string
}

func NewScanCmd() *cobra.Command {
	options := scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run autonomous security scans against one or more targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, &options)
		},
	}

	cmd.Flags().StringVar(&options.TargetsFile, "targets", "targets.txt", "file with target URLs, one per line")
	cmd.Flags().StringVar(&options.Target, "target", "", "single target URL (overrides --targets)")
	cmd.Flags().IntVar(&options.MaxRounds, "max-rounds", 100, "maximum tool-execution rounds per scan (0 means unlimited)")
	cmd.Flags().IntVar(&options.Parallel, "parallel", 0, "maximum scans running at once (0 means unbounded)")
	cmd.Flags().StringVar(&options.Provider, "provider", "openai", "model provider (openai or anthropic)")
	cmd.Flags().StringVar(&options.Model, "model", "gpt-5", "model to drive the agents with")
	cmd.Flags().StringVar(&options.Interpreter, "interpreter", "python3", "interpreter command for sandbox code execution")
	cmd.Flags().StringVar(&options.Effort, "reasoning-effort", "high", "reasoning effort passed to the model")
	cmd.Flags().StringVar(&options.OutputDir, "out", "", "directory for result and usage files (default: working directory)")

	return cmd
}

func runScan(cmd *cobra.Command, options *scanOptions) error {
	logger := slog.Default()
	fs := afero.NewOsFs()

	targets, err := resolveTargets(fs, options)
	if err != nil {
		return err
	}

	systemPrompt := os.Getenv("SYSTEM_PROMPT")
	if systemPrompt == "" {
		return fmt.Errorf("SYSTEM_PROMPT is not set; configure it in the environment or .env file")
	}
	userPrompt := os.Getenv("USER_PROMPT")
	if userPrompt == "" {
		userPrompt = defaultUserPrompt
	}

	provider, err := buildProvider(options.Provider)
	if err != nil {
		return err
	}

	factory, err := sandbox.FactoryFromEnv()
	if err != nil {
		logger.Warn("sandbox configuration invalid, scans run without a sandbox", "error", err)
	}

	mail := mailtm.NewClient()
	registerMailAccounts(mail, logger)

	coordinator := scan.NewCoordinator(provider, options.Model,
		scan.WithMaxRounds(options.MaxRounds),
		scan.WithOutputDir(options.OutputDir),
		scan.WithFs(fs),
		scan.WithSandboxFactory(factory),
		scan.WithNotifier(notify.NewNotifierFromEnv()),
		scan.WithMail(mail),
		scan.WithInterpreter(options.Interpreter),
		scan.WithReasoningEffort(options.Effort),
		scan.WithLogger(logger),
	)

	summary := coordinator.RunAll(cmd.Context(), targets, systemPrompt, userPrompt, options.Parallel)
	printSummary(cmd, summary)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d scans failed", summary.Failed, summary.Total)
	}
	return nil
}

func resolveTargets(fs afero.Fs, options *scanOptions) ([]string, error) {
	if options.Target != "" {
		return []string{options.Target}, nil
	}

	targets, err := scan.ReadTargetsFile(fs, options.TargetsFile)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no valid targets found in %s", options.TargetsFile)
	}
	return targets, nil
}

func buildProvider(name string) (model.Provider, error) {
	switch name {
	case "openai":
		return model.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"))
	case "anthropic":
		return model.NewAnthropicProvider(os.Getenv("ANTHROPIC_API_KEY"))
	default:
		return nil, fmt.Errorf("unknown provider %q, expected openai or anthropic", name)
	}
}

// registerMailAccounts loads disposable mailboxes from MAILTM_ACCOUNTS,
// formatted as a comma-separated list of email:token pairs.
func registerMailAccounts(mail *mailtm.Client, logger *slog.Logger) {
	accounts := os.Getenv("MAILTM_ACCOUNTS")
	if accounts == "" {
		return
	}

	for _, account := range strings.Split(accounts, ",") {
		email, token, ok := strings.Cut(strings.TrimSpace(account), ":")
		if !ok || email == "" || token == "" {
			logger.Warn("skipping malformed mail account entry", "entry", account)
			continue
		}
		mail.RegisterToken(email, token)
	}
}

func printSummary(cmd *cobra.Command, summary *scan.BatchSummary) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Target", "Status", "Result File", "Main Calls", "Sandbox Calls"})

	for _, result := range summary.Results {
		if result == nil {
			continue
		}
		status := string(result.Status)
		if result.Err != nil {
			status = fmt.Sprintf("%s (%v)", result.Status, result.Err)
		}
		table.Append([]string{
			result.Target,
			status,
			result.Filename,
			strconv.Itoa(result.Usage.MainAgentCalls),
			strconv.Itoa(result.Usage.SandboxAgentCalls),
		})
	}
	table.Render()

	fmt.Fprintf(cmd.OutOrStdout(), "\nTotal targets: %d\nCompleted successfully: %d\nFailed: %d\nTotal API calls: %d\n",
		summary.Total, summary.Completed, summary.Failed, summary.TotalMainCalls+summary.TotalSandboxCalls)
}
