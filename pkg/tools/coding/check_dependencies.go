package coding

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/patchsmith/patchsmith/pkg/agent/tools"
	"github.com/patchsmith/patchsmith/pkg/security/workspace"
)

// dependencyManifests maps an ecosystem to the configuration files that
// declare its dependencies.
var dependencyManifests = map[string][]string{
	"node":   {"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml"},
	"python": {"requirements.txt", "pyproject.toml", "setup.py", "Pipfile"},
	"go":     {"go.mod", "go.sum"},
	"rust":   {"Cargo.toml", "Cargo.lock"},
}

// manifestOutputLimit caps each manifest's contribution; lock files can
// be enormous and the agent only needs the declared dependencies.
const manifestOutputLimit = 8 * 1024

// CheckDependenciesTool reads the repository's dependency manifests so
// the agent can see what libraries are available before planning edits.
type CheckDependenciesTool struct {
	guard *workspace.Guard
}

// NewCheckDependenciesTool creates a CheckDependenciesTool scoped to the
// sandbox checkout.
func NewCheckDependenciesTool(guard *workspace.Guard) *CheckDependenciesTool {
	return &CheckDependenciesTool{guard: guard}
}

// Name returns the tool name.
func (t *CheckDependenciesTool) Name() string {
	return "check_dependencies"
}

// Description returns the tool description.
func (t *CheckDependenciesTool) Description() string {
	return "Read the project's dependency and configuration files. Ecosystems: node, python, go, rust, or all."
}

// Schema returns the JSON schema for the tool's input parameters.
func (t *CheckDependenciesTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"ecosystem": map[string]interface{}{
				"type":        "string",
				"description": "Which ecosystem's manifests to read",
				"enum":        []string{"node", "python", "go", "rust", "all"},
			},
		},
		[]string{"ecosystem"},
	)
}

// Execute reads the matching manifests from the repository root and
// returns their contents, skipping files that do not exist.
func (t *CheckDependenciesTool) Execute(_ context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input struct {
		XMLName   xml.Name `xml:"arguments"`
		Ecosystem string   `xml:"ecosystem"`
	}

	if err := tools.UnmarshalXMLWithFallback(argsXML, &input); err != nil {
		return "", nil, fmt.Errorf("invalid arguments: %w", err)
	}

	ecosystem := strings.ToLower(strings.TrimSpace(input.Ecosystem))
	var manifests []string
	if ecosystem == "all" {
		var names []string
		for name := range dependencyManifests {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			manifests = append(manifests, dependencyManifests[name]...)
		}
	} else if files, ok := dependencyManifests[ecosystem]; ok {
		manifests = files
	} else {
		return "", nil, fmt.Errorf("unknown ecosystem %q, expected one of: node, python, go, rust, all", ecosystem)
	}

	var sections []string
	var found []string
	for _, name := range manifests {
		absPath, err := t.guard.ResolvePath(name)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}
		content := string(data)
		if len(content) > manifestOutputLimit {
			content = content[:manifestOutputLimit] + "\n... (truncated)"
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", name, strings.TrimRight(content, "\n")))
		found = append(found, filepath.Base(name))
	}

	metadata := map[string]interface{}{
		"ecosystem": ecosystem,
		"found":     found,
	}
	if len(sections) == 0 {
		return "No configuration files found", metadata, nil
	}
	return strings.Join(sections, "\n\n"), metadata, nil
}

// IsLoopBreaking returns false as this tool doesn't break the agent loop.
func (t *CheckDependenciesTool) IsLoopBreaking() bool {
	return false
}
