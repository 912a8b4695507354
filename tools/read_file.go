package tools

import (
	"context"
	"io"
	"strings"

	"github.com/petasbytes/go-toolchat/internal/safety"
)

type ReadFileInput struct {
	Path   string `json:"path" jsonschema_description:"Relative file path."`
	Offset int    `json:"offset,omitempty" jsonschema_description:"Line offset (0-based) to start reading from."`
	Limit  int    `json:"limit,omitempty" jsonschema_description:"Maximum lines to return from offset (default 200)."`
}

const defaultReadFileLimit = 200 // fallback page size when limit <= 0
const truncationSentinel = "-- truncated; use offset/limit to fetch more --\n"
const maxLineRunes = 2000     // per-line clamp
const overallRuneCap = 12_000 // overall cap after join

// ReadFileDefinition advertises read_file.
var ReadFileDefinition = DefinitionFor[ReadFileInput](
	"read_file",
	"Read the contents of a text file addressed by a relative path within the workspace. Directory paths and paths leaving the workspace are rejected.",
)

// Helper: clamp a string to at most n runes
func clampRunes(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}

// ReadFile returns a read_file implementation confined to ws. Output is paged:
//   - offset: 0-based starting line (negatives clamped to 0)
//   - limit: number of lines to return (<= 0 means 200)
//
// Lines are clamped to 2000 runes and the page to 12000; any truncation appends
// a trailing sentinel so the model knows to page.
func ReadFile(ws Workspace) Tool {
	return Typed(func(ctx context.Context, in ReadFileInput) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		content, err := ws.readFile(in.Path)
		if err != nil {
			return "", err
		}

		limit := in.Limit
		if limit <= 0 {
			limit = defaultReadFileLimit
		}
		offset := max(in.Offset, 0)

		lines := strings.Split(content, "\n")
		offset = min(offset, len(lines))
		end := min(offset+limit, len(lines))

		truncated := end < len(lines)
		for i := offset; i < end; i++ {
			if clamped, did := clampRunes(lines[i], maxLineRunes); did {
				lines[i] = clamped
				truncated = true
			}
		}

		out := strings.Join(lines[offset:end], "\n")
		if clamped, did := clampRunes(out, overallRuneCap); did {
			out = clamped
			truncated = true
		}

		if truncated {
			if !strings.HasSuffix(out, "\n") {
				out += "\n"
			}
			out += truncationSentinel
		}
		return out, nil
	})
}

func (ws Workspace) readFile(rel string) (string, error) {
	rel, err := safety.CleanRelPath(rel)
	if err != nil {
		return "", err
	}
	root, err := ws.open()
	if err != nil {
		return "", err
	}
	defer root.Close()

	info, err := root.Stat(rel)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", safety.ToolError{Code: safety.CodeNotAFile, Message: rel + " is a directory, not a file"}
	}
	f, err := root.Open(rel)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
