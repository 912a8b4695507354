package tools

import (
	"context"
	"os"
	"time"
)

// Workspace confines file tools to Dir. Paths pass safety.CleanRelPath first
// and are then resolved with os.Root, so symlink escapes are rejected too.
type Workspace struct {
	Dir string
}

func (ws Workspace) open() (*os.Root, error) {
	dir := ws.Dir
	if dir == "" {
		dir = "."
	}
	return os.OpenRoot(dir)
}

type CurrentTimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema_description:"IANA timezone name, e.g. Europe/London. Defaults to the configured timezone."`
}

// CurrentTimeDefinition advertises current_time.
var CurrentTimeDefinition = DefinitionFor[CurrentTimeInput](
	"current_time",
	"Return the current date and time in ISO-8601 format.",
)

// CurrentTime returns a current_time implementation defaulting to loc.
// now may be nil.
func CurrentTime(loc *time.Location, now func() time.Time) Tool {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Typed(func(_ context.Context, in CurrentTimeInput) (string, error) {
		l := loc
		if in.Timezone != "" {
			var err error
			if l, err = time.LoadLocation(in.Timezone); err != nil {
				return "", err
			}
		}
		return now().In(l).Format(time.RFC3339), nil
	})
}

// RegisterBuiltins wires the built-in tools into r.
func RegisterBuiltins(r *Registry, ws Workspace, loc *time.Location) error {
	builtins := []struct {
		def  ToolDefinition
		impl Tool
	}{
		{ReadFileDefinition, ReadFile(ws)},
		{ListFilesDefinition, ListFiles(ws)},
		{CurrentTimeDefinition, CurrentTime(loc, nil)},
	}
	for _, b := range builtins {
		if err := r.Register(b.def, b.impl); err != nil {
			return err
		}
	}
	return nil
}
