package scan

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/furisto/scout/backend/agent"
	"github.com/furisto/scout/backend/mailtm"
	"github.com/furisto/scout/backend/model"
	"github.com/furisto/scout/backend/notify"
	"github.com/furisto/scout/backend/sandbox"
	"github.com/furisto/scout/backend/tool"
	"github.com/furisto/scout/backend/tool/execution"
	"github.com/furisto/scout/backend/usage"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Result is the outcome of one target scan.
type Result struct {
	Target        string
	Filename      string
	UsageFilename string
	Status        Status
	Output        string
	Reason        agent.TerminationReason
	Usage         usage.Summary
	Err           error
}

type CoordinatorOptions struct {
	MaxRounds       int
	SandboxTimeout  time.Duration
	OutputDir       string
	Fs              afero.Fs
	SandboxFactory  sandbox.Factory
	Notifier        *notify.Notifier
	Mail            *mailtm.Client
	Interpreter     string
	ReasoningEffort string
	Logger          *slog.Logger
}

func DefaultCoordinatorOptions() *CoordinatorOptions {
	return &CoordinatorOptions{
		MaxRounds:       agent.DefaultMainRounds,
		SandboxTimeout:  12000 * time.Second,
		Fs:              afero.NewOsFs(),
		Interpreter:     "python3",
		ReasoningEffort: "high",
		Logger:          slog.Default(),
	}
}

type CoordinatorOption func(*CoordinatorOptions)

func WithMaxRounds(maxRounds int) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.MaxRounds = maxRounds
	}
}

// WithOutputDir places result and usage files under dir instead of the
// working directory.
func WithOutputDir(dir string) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.OutputDir = dir
	}
}

func WithFs(fs afero.Fs) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.Fs = fs
	}
}

func WithSandboxFactory(factory sandbox.Factory) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.SandboxFactory = factory
	}
}

func WithNotifier(notifier *notify.Notifier) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.Notifier = notifier
	}
}

func WithMail(mail *mailtm.Client) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.Mail = mail
	}
}

func WithInterpreter(interpreter string) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.Interpreter = interpreter
	}
}

func WithReasoningEffort(effort string) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.ReasoningEffort = effort
	}
}

func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(o *CoordinatorOptions) {
		o.Logger = logger
	}
}

// Coordinator runs a full scan per target: dedicated sandbox, dedicated usage
// tracker, one main agent loop, and result persistence.
type Coordinator struct {
	provider model.Provider
	modelID  string
	options  *CoordinatorOptions
}

func NewCoordinator(provider model.Provider, modelID string, opts ...CoordinatorOption) *Coordinator {
	options := DefaultCoordinatorOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Coordinator{
		provider: provider,
		modelID:  modelID,
		options:  options,
	}
}

// RunScan scans one target. The sandbox is torn down exactly once on every
// exit path, including panics, and a panic becomes an error result rather
// than taking down sibling scans.
func (c *Coordinator) RunScan(ctx context.Context, targetURL, systemPrompt, baseUserPrompt string) (result *Result) {
	logger := c.options.Logger.With("target", targetURL)
	logger.Info("starting scan")

	result = &Result{Target: targetURL, Status: StatusError}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("scan panicked", "panic", r)
			result.Err = fmt.Errorf("scan panicked: %v", r)
		}
	}()

	session := c.createSession(ctx, logger)
	defer c.destroySession(session, logger)

	tracker := usage.NewTracker(logger)
	userPrompt := strings.ReplaceAll(baseUserPrompt, "{target_url}", targetURL)

	toolbox, err := c.buildToolbox(session, tracker, targetURL, logger)
	if err != nil {
		logger.Error("failed to assemble toolbox", "error", err)
		result.Err = err
		return result
	}

	loop := agent.NewLoop(agent.KindMain, c.provider, c.modelID, toolbox,
		agent.WithMaxRounds(c.options.MaxRounds),
		agent.WithReasoningEffort(c.options.ReasoningEffort),
		agent.WithTracker(tracker),
		agent.WithTargetURL(targetURL),
		agent.WithMetadata(map[string]string{
			"name":       "security_scan",
			"site_name":  siteName(targetURL),
			"target_url": targetURL,
		}),
		agent.WithLogger(logger),
	)

	loopResult, err := loop.Run(ctx, systemPrompt, userPrompt)
	if err != nil {
		logger.Error("scan failed", "error", err)
		result.Err = err
		return result
	}

	result.Output = loopResult.Output
	result.Reason = loopResult.Reason

	if c.options.OutputDir != "" {
		if err := c.options.Fs.MkdirAll(c.options.OutputDir, 0o755); err != nil {
			logger.Error("failed to create output directory", "error", err)
			result.Err = err
			return result
		}
	}

	filename := filepath.Join(c.options.OutputDir, sanitizeTarget(targetURL)+".md")
	if err := afero.WriteFile(c.options.Fs, filename, []byte(loopResult.Output), 0o644); err != nil {
		logger.Error("failed to save scan result", "error", err)
		result.Err = err
		return result
	}
	result.Filename = filename

	usageFilename, err := tracker.Save(c.options.Fs, filepath.Join(c.options.OutputDir, siteName(targetURL)+"_"))
	if err != nil {
		logger.Error("failed to save usage data", "error", err)
		result.Err = err
		return result
	}
	result.UsageFilename = usageFilename

	result.Status = StatusCompleted
	result.Usage = tracker.Summary()
	logger.Info("scan completed", "result_file", filename, "usage_file", usageFilename)
	return result
}

// buildToolbox assembles the full tool registry for one scan and restricts
// the main agent to everything except the raw execution tools, which are
// reserved for nested loops.
func (c *Coordinator) buildToolbox(session sandbox.Session, tracker *usage.Tracker, targetURL string, logger *slog.Logger) (*tool.Toolbox, error) {
	executionTools := tool.NewToolbox(
		execution.NewTools(session,
			execution.WithInterpreter(c.options.Interpreter),
			execution.WithLogger(logger),
		).All()...,
	)

	subagentCfg := agent.SubagentConfig{
		Provider:       c.provider,
		Model:          c.modelID,
		ExecutionTools: executionTools,
		Tracker:        tracker,
		TargetURL:      targetURL,
		Logger:         logger,
	}

	registry := tool.NewToolbox(executionTools.List()...)
	registry.Register(agent.SandboxAgentTool(subagentCfg))
	registry.Register(agent.ValidatorAgentTool(subagentCfg))
	if c.options.Mail != nil {
		for _, t := range c.options.Mail.Tools() {
			registry.Register(t)
		}
	}
	if c.options.Notifier != nil {
		registry.Register(c.options.Notifier.AlertTool())
		registry.Register(c.options.Notifier.SummaryTool())
	}

	var surface []string
	for _, t := range registry.List() {
		if _, reserved := executionTools.Get(t.Name); reserved {
			continue
		}
		surface = append(surface, t.Name)
	}
	return registry.Subset(surface...)
}

// createSession returns nil when no factory is configured or creation fails.
// The scan still runs; execution tools then report the missing sandbox.
func (c *Coordinator) createSession(ctx context.Context, logger *slog.Logger) sandbox.Session {
	if c.options.SandboxFactory == nil {
		return nil
	}

	session, err := c.options.SandboxFactory(ctx)
	if err != nil {
		logger.Warn("failed to create sandbox", "error", err)
		return nil
	}

	if setter, ok := session.(sandbox.TimeoutSetter); ok {
		setter.SetTimeout(c.options.SandboxTimeout)
	}
	logger.Info("sandbox created", "sandbox_id", session.ID())
	return session
}

func (c *Coordinator) destroySession(session sandbox.Session, logger *slog.Logger) {
	if session == nil {
		return
	}
	destroyer, ok := session.(sandbox.Destroyer)
	if !ok {
		return
	}

	// Teardown must not inherit scan cancellation; leaked sandboxes cost
	// money.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := destroyer.Destroy(ctx); err != nil {
		logger.Error("failed to destroy sandbox", "error", err)
		return
	}
	logger.Info("sandbox destroyed", "sandbox_id", session.ID())
}

func sanitizeTarget(targetURL string) string {
	sanitized := strings.TrimPrefix(targetURL, "https://")
	sanitized = strings.TrimPrefix(sanitized, "http://")
	return strings.ReplaceAll(sanitized, "/", "_")
}

func siteName(targetURL string) string {
	if targetURL == "" {
		return "unknown"
	}
	site := strings.TrimPrefix(targetURL, "https://")
	site = strings.TrimPrefix(site, "http://")
	if i := strings.Index(site, "/"); i >= 0 {
		site = site[:i]
	}
	return site
}
