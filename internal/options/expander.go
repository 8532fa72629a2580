// Package options turns the raw multi-line option text of a notification
// step into the key/value map passed to the remote job. Expansion order:
// environment variables first, then $ARTIFACT_NAME{regex} tokens, then
// the text is parsed as Java properties.
package options

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/magiconair/properties"

	"github.com/lei/rundeck-notify/pkg/logger"
)

// ErrUnparsable indicates the option text is not valid properties
// syntax. Distinct from an empty result: the trigger must not proceed.
var ErrUnparsable = errors.New("unable to parse option text")

// artifactTokenPattern matches $ARTIFACT_NAME{regex} tokens. The inner
// capture is deliberately greedy, it always runs to the last closing
// brace on the line.
var artifactTokenPattern = regexp.MustCompile(`\$ARTIFACT_NAME\{(.+)\}`)

// envVarPattern matches ${VAR} references
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Parse expands the raw option text against the environment bindings and
// the artifact list, then parses it into a key/value map. Blank input
// yields an empty, non-nil map.
func Parse(raw string, env map[string]string, artifacts []string, log *logger.Logger) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}

	expanded := ExpandVariables(raw, env)

	expanded, err := ExpandArtifactTokens(expanded, artifacts)
	if err != nil {
		return nil, err
	}

	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes([]byte(expanded))
	if err != nil {
		log.Warn("options: failed to parse option text", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	return props.Map(), nil
}

// ExpandVariables substitutes ${VAR} references from the given bindings.
// Unknown variables are left in place, expansion never fails.
func ExpandVariables(input string, env map[string]string) string {
	if len(env) == 0 {
		return input
	}

	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, ok := env[name]; ok {
			return value
		}
		return match
	})
}

// ExpandArtifactTokens substitutes each $ARTIFACT_NAME{regex} token with
// the first artifact filename whose full name matches the regex. The
// scan runs left to right; after a substitution it resumes immediately
// past the inserted text, and a token with no matching artifact stays
// untouched. An invalid regex aborts the whole expansion.
func ExpandArtifactTokens(input string, artifacts []string) (string, error) {
	idx := 0
	for idx <= len(input) {
		loc := artifactTokenPattern.FindStringSubmatchIndex(input[idx:])
		if loc == nil {
			break
		}

		start := idx + loc[0]
		end := idx + loc[1]
		token := input[start:end]
		expr := input[idx+loc[2] : idx+loc[3]]

		// full-name match, a partial hit is not a hit
		pattern, err := regexp.Compile("^(?:" + expr + ")$")
		if err != nil {
			return "", fmt.Errorf("invalid artifact pattern %q: %w", expr, err)
		}

		matched := false
		for _, name := range artifacts {
			if pattern.MatchString(name) {
				input = strings.ReplaceAll(input, token, name)
				idx = start + len(name)
				matched = true
				break
			}
		}
		if !matched {
			idx = end
		}
	}

	return input, nil
}
