package command

import (
	"fmt"
	"strings"
)

// Kind tags a command variant.
type Kind string

const (
	// KindRaw passes an arbitrary verb and arguments through.
	KindRaw Kind = "raw"
	// KindCreate creates resources from files.
	KindCreate Kind = "create"
	// KindApply applies resources from files.
	KindApply Kind = "apply"
	// KindDelete deletes resources by name or selector.
	KindDelete Kind = "delete"
	// KindProcess renders a template with parameters.
	KindProcess Kind = "process"
	// KindWatch watches resources and prints each change.
	KindWatch Kind = "watch"
	// KindLogs prints logs of a resource.
	KindLogs Kind = "logs"
	// KindStartBuild starts a build from a build config.
	KindStartBuild Kind = "start-build"
)

// DefaultWatchTemplate prints one line per observed object.
const DefaultWatchTemplate = "name"

// Connection carries the resolved cluster parameters shared by every variant.
type Connection struct {
	ToolName      string
	Server        string
	Project       string
	SkipTLSVerify bool
	CAPath        string
	Token         string
	LogLevel      int
	AdvArgs       []string
}

// Variant is a tagged command description. Only the fields relevant to Kind
// are read.
type Variant struct {
	Kind Kind

	// Verb is the verb for KindRaw.
	Verb string

	// Resources names resources ("pods/web-1", "dc") or, for KindProcess, the
	// template.
	Resources []string

	// Selector is a label selector ("app=web").
	Selector string

	// Files are manifest paths for KindCreate and KindApply.
	Files []string

	// Params are template parameters "NAME=value" for KindProcess.
	Params []string

	// Template is the output template for KindWatch.
	Template string

	// Follow streams output for KindLogs and KindStartBuild.
	Follow bool

	// Wait blocks until completion for KindStartBuild.
	Wait bool

	// Args are additional user arguments.
	Args []string

	// Options are trailing option flags.
	Options []string
}

// Spec builds the command spec for v against conn.
func (v Variant) Spec(conn Connection) (*Spec, error) {
	opts := Options{
		ToolName:      conn.ToolName,
		Server:        conn.Server,
		Project:       conn.Project,
		SkipTLSVerify: conn.SkipTLSVerify,
		CAPath:        conn.CAPath,
		Token:         conn.Token,
		LogLevel:      conn.LogLevel,
		AdvArgs:       conn.AdvArgs,
		UserArgs:      v.Args,
		Options:       v.Options,
	}

	switch v.Kind {
	case KindRaw, "":
		opts.Verb = v.Verb

	case KindCreate, KindApply:
		if len(v.Files) == 0 {
			return nil, fmt.Errorf("%s requires at least one file", v.Kind)
		}
		opts.Verb = string(v.Kind)
		for _, f := range v.Files {
			opts.VerbArgs = append(opts.VerbArgs, "-f", f)
		}

	case KindDelete:
		if len(v.Resources) == 0 && v.Selector == "" {
			return nil, fmt.Errorf("delete requires resources or a selector")
		}
		opts.Verb = "delete"
		opts.VerbArgs = append(opts.VerbArgs, v.Resources...)
		if v.Selector != "" {
			opts.VerbArgs = append(opts.VerbArgs, "-l", v.Selector)
		}

	case KindProcess:
		if len(v.Resources) != 1 {
			return nil, fmt.Errorf("process requires exactly one template, got %d", len(v.Resources))
		}
		opts.Verb = TemplateVerb
		opts.VerbArgs = append(opts.VerbArgs, v.Resources[0])
		for _, p := range v.Params {
			opts.VerbArgs = append(opts.VerbArgs, "-p", p)
		}

	case KindWatch:
		if len(v.Resources) == 0 {
			return nil, fmt.Errorf("watch requires at least one resource kind")
		}
		opts.Verb = "get"
		opts.VerbArgs = append(opts.VerbArgs, strings.Join(v.Resources, ","))
		if v.Selector != "" {
			opts.VerbArgs = append(opts.VerbArgs, "-l", v.Selector)
		}
		opts.VerbArgs = append(opts.VerbArgs, "--watch", "-o", watchTemplate(v.Template))

	case KindLogs:
		if len(v.Resources) != 1 {
			return nil, fmt.Errorf("logs requires exactly one resource, got %d", len(v.Resources))
		}
		opts.Verb = "logs"
		opts.VerbArgs = append(opts.VerbArgs, v.Resources[0])
		if v.Follow {
			opts.VerbArgs = append(opts.VerbArgs, "-f")
		}

	case KindStartBuild:
		if len(v.Resources) != 1 {
			return nil, fmt.Errorf("start-build requires exactly one build config, got %d", len(v.Resources))
		}
		opts.Verb = "start-build"
		opts.VerbArgs = append(opts.VerbArgs, v.Resources[0])
		if v.Follow {
			opts.VerbArgs = append(opts.VerbArgs, "--follow")
		}
		if v.Wait {
			opts.VerbArgs = append(opts.VerbArgs, "--wait")
		}

	default:
		return nil, fmt.Errorf("unknown command kind: %s", v.Kind)
	}

	return New(opts)
}

// watchTemplate returns the -o value for a watch. A bare "{...}" expression is
// a JSONPath template.
func watchTemplate(template string) string {
	template = strings.TrimSpace(template)
	switch {
	case template == "":
		return DefaultWatchTemplate
	case strings.HasPrefix(template, "{"):
		return "jsonpath=" + template
	}
	return template
}
