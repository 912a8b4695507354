// Package tools defines the tool contract and the registry the orchestrator
// dispatches model-requested calls through.
//
// Includes:
//   - ToolDefinition: name, description, named parameters, required set.
//   - DefinitionFor[T](): derive a definition from a Go struct via JSON Schema reflection.
//   - Tool / ToolFunc / Typed[T]: implementations invoked with a named-argument map.
//   - Registry: last registration wins; unknown names yield a corrective sentinel
//     instead of an error so the conversation can continue.
//   - Built-ins: read_file, list_files (confined to a workspace root), current_time.
package tools
