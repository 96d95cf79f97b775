package scenario

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single scenario file.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided scenario file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses scenario YAML content.
func Parse(data []byte, sourcePath string) (*Scenario, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty scenario file"}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid yaml: %v", err)}
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "scenario must be a mapping"}
	}

	s := &Scenario{SourcePath: sourcePath}
	if err := root.Content[0].Decode(s); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}
	if len(s.Steps) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: root.Content[0].Line, Message: "scenario has no steps"}
	}
	return s, nil
}

// configNames are project config files that live next to scenarios.
var configNames = map[string]bool{"steadyhand.yaml": true, "steadyhand.yml": true}

// Discover expands files and directories into scenario file paths.
// Directories are walked recursively; the result is sorted and deduplicated.
func Discover(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isScenarioFile(d.Name()) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func isScenarioFile(name string) bool {
	if configNames[name] {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// ShouldInclude applies tag filters: at least one include tag must be
// present (when any are given) and no exclude tag may be.
func ShouldInclude(s *Scenario, includeTags, excludeTags []string) bool {
	if len(includeTags) > 0 {
		hasTag := false
		for _, tag := range s.Tags {
			if slices.Contains(includeTags, tag) {
				hasTag = true
				break
			}
		}
		if !hasTag {
			return false
		}
	}

	for _, tag := range s.Tags {
		if slices.Contains(excludeTags, tag) {
			return false
		}
	}
	return true
}
