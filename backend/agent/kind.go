package agent

// Kind identifies which loop is running. The kind shows up in round-limit
// sentinels, request metadata, and usage attribution.
type Kind string

const (
	KindMain      Kind = "main_agent"
	KindSandbox   Kind = "sandbox_agent"
	KindValidator Kind = "validator_agent"
)

const (
	DefaultMainRounds      = 100
	DefaultSandboxRounds   = 100
	DefaultValidatorRounds = 50
)
