// Package safety holds the path policy applied to model-supplied file paths
// before the tools touch the workspace.
package safety

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// ToolError is a machine-readable error body for surfacing back to the model as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool results small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// Error codes.
const (
	CodeOutsideWorkspace = "ERR_PATH_OUTSIDE_WORKSPACE"
	CodeDeniedRead       = "ERR_DENIED_READ"
	CodeNotAFile         = "ERR_NOT_A_FILE"
)

// deniedDirs hold repository metadata and this program's own artifacts
// (conversation snapshots, telemetry); the model never reads them.
var deniedDirs = []string{".git", ".agent"}

// CleanRelPath normalises a workspace-relative path. It rejects absolute
// inputs, parent traversal and the read denylist. Symlink escapes are left to
// os.Root, which resolves the path component by component.
func CleanRelPath(relPath string) (string, error) {
	if filepath.IsAbs(relPath) || strings.HasPrefix(relPath, "/") {
		return "", ToolError{Code: CodeOutsideWorkspace, Message: "absolute paths are not allowed"}
	}

	cleaned := filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ToolError{Code: CodeOutsideWorkspace, Message: "requested path resolves outside the workspace"}
	}

	slash := filepath.ToSlash(cleaned)
	for _, d := range deniedDirs {
		if slash == d || strings.HasPrefix(slash, d+"/") {
			return "", ToolError{Code: CodeDeniedRead, Message: "reads under .git/ or .agent/ are not allowed"}
		}
	}
	return cleaned, nil
}
