// Package templater fills ${NAME} placeholders in workflow manifests.
package templater

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/palantir/stacktrace"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/utils/exec"
)

const (
	EngineEnvsubst = "envsubst"
	EngineBuiltin  = "builtin"
)

// Templater renders a manifest with the given variables. Placeholders for
// variables that are not supplied are left untouched.
type Templater interface {
	Template(ctx context.Context, manifestPath string, vars map[string]string) (string, error)
}

// New returns the templater for engine
func New(engine string, runner exec.CommandRunner) (Templater, error) {
	switch engine {
	case EngineEnvsubst, "":
		return &Envsubst{Runner: runner}, nil
	case EngineBuiltin:
		return &Builtin{}, nil
	}
	return nil, cerrors.Configuration(fmt.Sprintf("unknown templating engine %q", engine))
}

// Envsubst pipes the manifest through the envsubst binary
type Envsubst struct {
	Runner exec.CommandRunner
	Binary string
}

func (e *Envsubst) Template(ctx context.Context, manifestPath string, vars map[string]string) (string, error) {
	manifest, err := readManifest(manifestPath)
	if err != nil {
		return "", err
	}
	binary := e.Binary
	if binary == "" {
		binary = "envsubst"
	}

	out, err := e.Runner.Run(ctx, exec.Command{
		Name:  binary,
		Args:  []string{shellFormat(vars)},
		Stdin: bytes.NewReader(manifest),
		Env:   environ(vars),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeTemplate, Target: manifestPath, Reason: err.Error()}, "could not template manifest")
	}
	return out.Stdout, nil
}

// Builtin substitutes ${NAME} and $NAME in-process
type Builtin struct{}

func (Builtin) Template(_ context.Context, manifestPath string, vars map[string]string) (string, error) {
	manifest, err := readManifest(manifestPath)
	if err != nil {
		return "", err
	}
	return Expand(string(manifest), vars), nil
}

// Expand replaces the placeholders of the supplied variables and leaves every
// other $-sequence as it was written
func Expand(s string, vars map[string]string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '$' || i+1 >= len(s) {
			buf.WriteByte(s[i])
			i++
			continue
		}
		if s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end >= 0 {
				name := s[i+2 : i+2+end]
				if v, ok := vars[name]; ok && isName(name) {
					buf.WriteString(v)
					i += end + 3
					continue
				}
			}
			buf.WriteByte(s[i])
			i++
			continue
		}
		j := i + 1
		for j < len(s) && isNameByte(s[j], j == i+1) {
			j++
		}
		if v, ok := vars[s[i+1:j]]; ok && j > i+1 {
			buf.WriteString(v)
			i = j
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9':
		return !first
	}
	return false
}

func readManifest(manifestPath string) ([]byte, error) {
	manifest, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeTemplate, Target: manifestPath, Reason: err.Error()}, "could not read manifest")
	}
	return manifest, nil
}

// shellFormat restricts envsubst to the supplied variables, e.g. "${RUNTIME_CLASS_NAME}"
func shellFormat(vars map[string]string) string {
	names := sortedNames(vars)
	for i, name := range names {
		names[i] = "${" + name + "}"
	}
	return strings.Join(names, " ")
}

func environ(vars map[string]string) []string {
	env := make([]string, 0, len(vars))
	for _, name := range sortedNames(vars) {
		env = append(env, name+"="+vars[name])
	}
	return env
}

func sortedNames(vars map[string]string) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
