package command

import (
	"fmt"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/google/shlex"
)

// Build returns the argument vector for the spec.
//
// For the template verb the elements are shell words (see String); use Argv
// for the vector to execute.
//
// Connection flags precede the verb so sub-commands such as rsh/exec never
// mistake them for arguments of the command run inside a pod. Namespace,
// loglevel and token are only injected when the caller has not already
// supplied them. When redacted is true the token is replaced by RedactedToken,
// and the CA path and loglevel are omitted unless verbosity is above zero.
func (s *Spec) Build(redacted bool) []string {
	cmd := []string{s.word(s.toolName)}

	if s.server != "" {
		cmd = append(cmd, s.word("--server="+s.server))
	}

	cmd = append(cmd, s.renderGroup(s.advArgs)...)

	showVerbose := !redacted || s.logLevel > 0

	if s.skipTLSVerify {
		cmd = append(cmd, "--insecure-skip-tls-verify")
	} else if s.caPath != "" && showVerbose {
		cmd = append(cmd, s.word("--certificate-authority="+s.caPath))
	}

	if s.project != "" && !s.hasArg(cmd, "-n", "--namespace") {
		cmd = append(cmd, s.word("--namespace="+s.project))
	}

	if showVerbose && !s.hasArg(cmd, "--loglevel") {
		cmd = append(cmd, "--loglevel="+strconv.Itoa(s.logLevel))
	}

	if s.token != "" && !s.hasArg(cmd, "--token") {
		token := s.token
		if redacted {
			token = RedactedToken
		}
		cmd = append(cmd, s.word("--token="+token))
	}

	cmd = append(cmd, s.word(s.verb))
	cmd = append(cmd, s.renderGroup(s.verbArgs)...)
	cmd = append(cmd, s.renderGroup(s.userArgs)...)
	cmd = append(cmd, s.renderGroup(s.options)...)

	return cmd
}

// word returns x as a shell word when the template verb is in use, so the
// display string can be tokenized back into Argv.
func (s *Spec) word(x string) string {
	if !s.IsTemplateVerb() {
		return x
	}
	return quoteValue(x)
}

// String renders the command for display.
//
// For ordinary verbs every element is shell-quoted, so a POSIX tokenizer
// yields Build(redacted) back. For the template verb the elements already
// carry their own quoting and are joined as-is.
func (s *Spec) String(redacted bool) string {
	args := s.Build(redacted)
	if s.IsTemplateVerb() {
		return strings.Join(args, " ")
	}
	return shellescape.QuoteCommand(args)
}

// Argv returns the unredacted vector to execute.
func (s *Spec) Argv() ([]string, error) {
	if !s.IsTemplateVerb() {
		return s.Build(false), nil
	}

	argv, err := shlex.Split(s.String(false))
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize %s command: %w", s.verb, err)
	}
	return argv, nil
}

// hasArg reports whether any caller-supplied group, or the vector built so
// far, already carries one of flags, either exactly or as "flag=value".
func (s *Spec) hasArg(built []string, flags ...string) bool {
	groups := [][]string{built, s.advArgs, s.verbArgs, s.userArgs, s.options}
	for _, group := range groups {
		for _, arg := range group {
			for _, flag := range flags {
				if arg == flag || strings.HasPrefix(arg, flag+"=") {
					return true
				}
			}
		}
	}
	return false
}

// renderGroup passes arguments through unchanged, except for the template
// verb, where values with spaces are quoted and multi-parameter strings are
// split.
func (s *Spec) renderGroup(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	if !s.IsTemplateVerb() {
		return cloneArgs(args)
	}

	out := make([]string, 0, len(args))
	for _, arg := range args {
		if !strings.Contains(arg, " ") {
			out = append(out, quoteValue(arg))
			continue
		}
		out = append(out, quoteTemplateArg(arg)...)
	}
	return out
}
