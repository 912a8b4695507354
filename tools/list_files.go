package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/petasbytes/go-toolchat/internal/safety"
)

type ListFilesInput struct {
	Path     string `json:"path,omitempty" jsonschema_description:"Optional relative path to list files from (defaults to the workspace root)."`
	Page     int    `json:"page,omitempty" jsonschema_description:"1-based page number (default 1)."`
	PageSize int    `json:"page_size,omitempty" jsonschema_description:"Page size (default 200)."`
}

// defaultListFilesPageSize is the fallback page size when page_size <= 0.
const defaultListFilesPageSize = 200

// ListFilesDefinition advertises list_files.
var ListFilesDefinition = DefinitionFor[ListFilesInput](
	"list_files",
	"List names of files in a directory within the workspace (non-recursive). Directories end with '/'.",
)

// ListFiles returns a list_files implementation confined to ws. Entries are
// sorted so paging is deterministic across filesystems; the result is a
// JSON-encoded []string and an out-of-range page yields "[]".
func ListFiles(ws Workspace) Tool {
	return Typed(func(ctx context.Context, in ListFilesInput) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := max(in.Page, 1)
		pageSize := in.PageSize
		if pageSize <= 0 {
			pageSize = defaultListFilesPageSize
		}

		names, err := ws.list(in.Path)
		if err != nil {
			return "", err
		}
		sort.Strings(names)

		start := (page - 1) * pageSize
		if start >= len(names) {
			return "[]", nil
		}
		end := min(start+pageSize, len(names))

		b, err := json.Marshal(names[start:end])
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
}

func (ws Workspace) list(rel string) ([]string, error) {
	rel, err := safety.CleanRelPath(rel)
	if err != nil {
		return nil, err
	}
	root, err := ws.open()
	if err != nil {
		return nil, err
	}
	defer root.Close()

	dir, err := root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}
