package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/domain"
)

// LanguageProfile describes how one language is compiled and run inside an
// isolated environment. Commands are shell strings executed in the workspace.
type LanguageProfile struct {
	Language       string
	Image          string
	SourceFilename string
	CompileCommand string // empty for interpreted languages
	RunCommand     string
	Environment    map[string]string
	PrefixCode     string
	PostfixCode    string
}

// HasCompileStep reports whether the profile compiles before running
func (p LanguageProfile) HasCompileStep() bool {
	return p.CompileCommand != ""
}

// Source returns the code written to the workspace, with hooks applied
func (p LanguageProfile) Source(code string) string {
	return p.PrefixCode + code + p.PostfixCode
}

// WithDriver returns p with prefix and postfix nested inside its own hooks
func (p LanguageProfile) WithDriver(prefix, postfix string) LanguageProfile {
	p.PrefixCode += prefix
	p.PostfixCode = postfix + p.PostfixCode
	return p
}

// LanguageName constants
const (
	LanguageJavaScript = "javascript"
	LanguagePython     = "python"
	LanguageCPP        = "cpp"
	LanguageC          = "c"
	LanguageJava       = "java"
)

var builtinProfiles = map[string]LanguageProfile{
	LanguageJavaScript: {
		Image:          "node:18-alpine",
		SourceFilename: "solution.js",
		RunCommand:     "node solution.js",
	},
	LanguagePython: {
		Image:          "python:3.11-slim",
		SourceFilename: "solution.py",
		RunCommand:     "python solution.py",
		Environment:    map[string]string{"PYTHONDONTWRITEBYTECODE": "1", "PYTHONUNBUFFERED": "1"},
	},
	LanguageCPP: {
		Image:          "gcc:11",
		SourceFilename: "solution.cpp",
		CompileCommand: "g++ -std=c++17 -O2 -o solution solution.cpp",
		RunCommand:     "./solution",
	},
	LanguageC: {
		Image:          "gcc:11",
		SourceFilename: "solution.c",
		CompileCommand: "gcc -O2 -o solution solution.c",
		RunCommand:     "./solution",
	},
	LanguageJava: {
		Image:          "eclipse-temurin:17-jdk-alpine",
		SourceFilename: "Solution.java",
		CompileCommand: "javac Solution.java",
		RunCommand:     "java -cp . Solution",
		Environment:    map[string]string{"JAVA_TOOL_OPTIONS": "-XX:+UseSerialGC -Xss64m"},
	},
}

// Registry maps language identifiers to execution profiles. It is built once
// and only read afterwards, so it is safe for concurrent use.
type Registry struct {
	profiles map[string]LanguageProfile
}

// NewRegistry returns the built-in table with overrides from cfg.Languages applied.
func NewRegistry(cfg *config.Config) *Registry {
	profiles := make(map[string]LanguageProfile, len(builtinProfiles))
	for name, p := range builtinProfiles {
		p.Language = name
		p.Environment = copyEnv(p.Environment)
		profiles[name] = p
	}

	if cfg != nil {
		for name, override := range cfg.Languages {
			name = strings.ToLower(name)
			p, ok := profiles[name]
			if !ok {
				// Overrides may only tune the fixed table.
				continue
			}
			profiles[name] = applyOverride(p, override)
		}
	}

	return &Registry{profiles: profiles}
}

func applyOverride(p LanguageProfile, o config.Language) LanguageProfile {
	if o.Image != "" {
		p.Image = o.Image
	}
	if o.Filename != "" {
		p.SourceFilename = o.Filename
	}
	if o.CompileCmd != "" {
		p.CompileCommand = o.CompileCmd
	}
	if o.RunCmd != "" {
		p.RunCommand = o.RunCmd
	}
	// viper lower-cases map keys; environment variable names are upper case by convention.
	for k, v := range o.Environment {
		if p.Environment == nil {
			p.Environment = make(map[string]string)
		}
		p.Environment[strings.ToUpper(k)] = v
	}
	p.PrefixCode = o.PrefixCode
	p.PostfixCode = o.PostfixCode
	return p
}

func copyEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// ProfileFor returns the profile for language or domain.ErrUnsupportedLanguage
func (r *Registry) ProfileFor(language string) (LanguageProfile, error) {
	p, ok := r.profiles[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return LanguageProfile{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, language)
	}
	return p, nil
}

// Languages returns the supported identifiers in sorted order
func (r *Registry) Languages() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// envList renders env as KEY=VALUE pairs in a stable order
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
