package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// emitMu serializes appends so concurrent turns never interleave lines.
var emitMu sync.Mutex

// Emit writes a single JSON line to <ArtifactsDir>/events.jsonl when observation
// is enabled. It augments fields with RFC3339Nano time and the event name.
func Emit(name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}

	// Make a shallow copy so callers' maps aren't mutated.
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	delete(m, "time")
	delete(m, "event")

	emitMu.Lock()
	defer emitMu.Unlock()

	dir := ArtifactsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		Logger().Warn().Err(err).Str("dir", dir).Msg("telemetry: mkdir")
		return
	}

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		Logger().Warn().Err(err).Str("path", path).Msg("telemetry: open")
		return
	}
	defer f.Close()

	// zerolog buffers the whole event and issues one Write per line.
	w := zerolog.New(f)
	w.Log().
		Str("time", time.Now().UTC().Format(time.RFC3339Nano)).
		Str("event", name).
		Fields(m).
		Send()
}

// PersistPayload writes v as indented JSON to
// <ArtifactsDir>/payloads/<turnID>-<seq>-<kind>.json when payload persistence
// is enabled. Failures are logged and otherwise ignored.
func PersistPayload(turnID string, seq int, kind string, v any) {
	if !PersistPayloadsEnabled() {
		return
	}
	if turnID == "" {
		turnID = "noturn"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		Logger().Warn().Err(err).Str("kind", kind).Msg("telemetry: marshal payload")
		return
	}
	dir := filepath.Join(ArtifactsDir(), "payloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		Logger().Warn().Err(err).Str("dir", dir).Msg("telemetry: mkdir")
		return
	}
	name := filepath.Join(dir, turnID+"-"+strconv.Itoa(seq)+"-"+kind+".json")
	if err := os.WriteFile(name, b, 0o644); err != nil {
		Logger().Warn().Err(err).Str("path", name).Msg("telemetry: write payload")
	}
}
