// Package command builds argument vectors for the cluster client tool.
//
// A Spec is an immutable description of one invocation: the cluster it talks
// to, the verb, four ordered argument groups, and the bearer token. Two
// renderings are derived from it on demand: a redacted one for logs and results,
// and an unredacted one for execution.
package command

import (
	"strings"
)

const (
	// DefaultToolName is the client tool launched when Options.ToolName is empty.
	DefaultToolName = "oc"

	// DefaultVerb is used when no verb is supplied.
	DefaultVerb = "help"

	// TemplateVerb is the verb whose arguments carry template parameters
	// and therefore get re-quoted.
	TemplateVerb = "process"

	// RedactedToken replaces the bearer token in redacted renderings.
	RedactedToken = "XXXXX"
)

// Options holds the inputs for a Spec.
type Options struct {
	// ToolName is the executable placed at argv[0]. Defaults to "oc".
	ToolName string

	// Server is the API server URL. Omitted from the command when empty.
	Server string

	// Project is the target namespace. Omitted when empty.
	Project string

	// SkipTLSVerify disables server certificate checks and suppresses CAPath.
	SkipTLSVerify bool

	// CAPath is the path to the server CA bundle.
	CAPath string

	// Verb is the primary sub-command, e.g. "get" or "process".
	Verb string

	// AdvArgs are global arguments placed before the verb.
	AdvArgs []string

	// VerbArgs are verb-specific arguments.
	VerbArgs []string

	// UserArgs are arguments supplied by the job author.
	UserArgs []string

	// Options are trailing option flags, e.g. "-o", "json".
	Options []string

	// Token is the bearer token. It must not contain CR or LF.
	Token string

	// LogLevel is the client tool verbosity. Zero is quiet.
	LogLevel int
}

// Spec is an immutable, validated command description.
type Spec struct {
	toolName      string
	server        string
	project       string
	skipTLSVerify bool
	caPath        string
	verb          string
	advArgs       []string
	verbArgs      []string
	userArgs      []string
	options       []string
	token         string
	logLevel      int
}

// New validates opts and returns a Spec.
// A token containing a carriage return or line feed is rejected with an
// *InvalidTokenError before anything is built.
func New(opts Options) (*Spec, error) {
	if strings.ContainsAny(opts.Token, "\r\n") {
		return nil, &InvalidTokenError{Reason: "tokens cannot contain carriage returns or new lines"}
	}

	toolName := strings.TrimSpace(opts.ToolName)
	if toolName == "" {
		toolName = DefaultToolName
	}

	verb := strings.TrimSpace(opts.Verb)
	if verb == "" {
		verb = DefaultVerb
	}

	return &Spec{
		toolName:      toolName,
		server:        opts.Server,
		project:       opts.Project,
		skipTLSVerify: opts.SkipTLSVerify,
		caPath:        opts.CAPath,
		verb:          verb,
		advArgs:       cloneArgs(opts.AdvArgs),
		verbArgs:      cloneArgs(opts.VerbArgs),
		userArgs:      cloneArgs(opts.UserArgs),
		options:       cloneArgs(opts.Options),
		token:         opts.Token,
		logLevel:      opts.LogLevel,
	}, nil
}

// Verb returns the verb, never empty.
func (s *Spec) Verb() string { return s.verb }

// ToolName returns the executable name placed at argv[0].
func (s *Spec) ToolName() string { return s.toolName }

// LogLevel returns the configured verbosity.
func (s *Spec) LogLevel() int { return s.logLevel }

// Verbose reports whether verbosity is above zero.
func (s *Spec) Verbose() bool { return s.logLevel > 0 }

// HasToken reports whether a bearer token is set.
func (s *Spec) HasToken() bool { return s.token != "" }

// Secrets returns the literal values that must never appear in logs.
func (s *Spec) Secrets() []string {
	if s.token == "" {
		return nil
	}
	return []string{s.token}
}

// IsTemplateVerb reports whether arguments are re-quoted for template processing.
func (s *Spec) IsTemplateVerb() bool {
	return strings.TrimSpace(s.verb) == TemplateVerb
}

func cloneArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	copy(out, args)
	return out
}
