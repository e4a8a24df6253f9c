package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// fragment is the part of a config file that includes can contribute: more
// agent definitions and further includes.
type fragment struct {
	Includes []string      `yaml:"includes"`
	Agents   []AgentConfig `yaml:"agents"`
}

// includeLoader walks include patterns depth-first, remembering absolute
// paths so a cycle is reported instead of followed.
type includeLoader struct {
	visited map[string]bool
}

// collect returns the agents declared by every file matched by patterns,
// in include order. Relative patterns resolve against baseDir and may not
// leave it.
func (l *includeLoader) collect(patterns []string, baseDir string, depth int) ([]AgentConfig, error) {
	if depth >= maxIncludeDepth {
		return nil, fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}

	var agents []AgentConfig
	for _, pattern := range patterns {
		paths, err := expandInclude(pattern, baseDir)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if l.visited[p] {
				return nil, fmt.Errorf("config includes: circular include of %q", p)
			}
			l.visited[p] = true

			frag, err := readFragment(p)
			if err != nil {
				return nil, err
			}
			agents = append(agents, frag.Agents...)

			if len(frag.Includes) > 0 {
				nested, err := l.collect(frag.Includes, filepath.Dir(p), depth+1)
				if err != nil {
					return nil, err
				}
				agents = append(agents, nested...)
			}
		}
	}
	return agents, nil
}

// expandInclude resolves one pattern to sorted absolute paths. A literal path
// that does not exist is returned as-is so the read reports it; a glob that
// matches nothing yields no paths.
func expandInclude(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	return matches, nil
}

func readFragment(path string) (fragment, error) {
	var frag fragment
	if err := validatePermissions(path); err != nil {
		return frag, fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return frag, fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &frag); err != nil {
		return frag, fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	return frag, nil
}
