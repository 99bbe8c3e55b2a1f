package definition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tjmonk/varmsg/errors"
	"github.com/tjmonk/varmsg/sink"
	"github.com/tjmonk/varmsg/varquery"
	"github.com/tjmonk/varmsg/varstore"
)

// documentSchema validates the shape of a message definition document
// before decoding. output_type is deliberately unconstrained: unknown
// values dispatch as disabled rather than failing the load.
const documentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["vars"],
	"properties": {
		"enabled":     {"type": "boolean"},
		"prefix":      {"type": "string"},
		"interval":    {"type": "integer", "minimum": 0},
		"trigger":     {"type": ["object", "array"]},
		"vars":        {"type": ["object", "array"]},
		"output_type": {"type": "string"},
		"output":      {"type": "string"},
		"header":      {"type": "string"}
	}
}`

// Document is the on-disk configuration for one message definition.
type Document struct {
	Enabled    bool            `json:"enabled"`
	Prefix     string          `json:"prefix"`
	Interval   int             `json:"interval"`
	Trigger    json.RawMessage `json:"trigger,omitempty"`
	Vars       json.RawMessage `json:"vars"`
	OutputType string          `json:"output_type"`
	Output     string          `json:"output"`
	Header     string          `json:"header,omitempty"`
}

// Loader builds message definitions from configuration documents.
type Loader struct {
	store    varstore.Store
	sinkOpts sink.Options
	logger   *slog.Logger
}

// NewLoader creates a loader. The sink options supply the transports
// available to the loaded definitions' sinks.
func NewLoader(store varstore.Store, sinkOpts sink.Options, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		store:    store,
		sinkOpts: sinkOpts,
		logger:   logger,
	}
}

// FromDocument builds one definition from raw document bytes. The
// document is schema-validated before decoding; a definition whose
// trigger or vars fail to resolve is discarded with the resolution error.
func (l *Loader) FromDocument(ctx context.Context, name string, data []byte) (*Definition, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "FromDocument", "decode document")
	}

	def := &Definition{
		Name:      name,
		Enabled:   doc.Enabled,
		Prefix:    doc.Prefix,
		Interval:  doc.Interval,
		countdown: doc.Interval,
	}

	if len(doc.Trigger) > 0 {
		source, err := parseSetNode(doc.Trigger)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "FromDocument", "parse trigger")
		}
		def.triggerSource = source
		if def.TriggerSet, err = source.resolve(ctx, l.store, nil); err != nil {
			return nil, errors.Wrap(err, "Loader", "FromDocument", "resolve trigger")
		}
	}

	source, err := parseSetNode(doc.Vars)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "FromDocument", "parse vars")
	}
	def.bodySource = source
	if def.BodySet, err = source.resolve(ctx, l.store, nil); err != nil {
		return nil, errors.Wrap(err, "Loader", "FromDocument", "resolve vars")
	}

	if def.Sink, err = sink.Open(doc.OutputType, doc.Output, l.sinkOpts); err != nil {
		return nil, errors.Wrap(err, "Loader", "FromDocument", "open sink")
	}

	if err := def.ExposeControls(ctx, l.store); err != nil {
		return nil, errors.Wrap(err, "Loader", "FromDocument", "expose controls")
	}

	if doc.Header != "" {
		// Header templates are handled by the transport layer, not here.
		l.logger.Debug("header template configured", "definition", name, "header", doc.Header)
	}

	l.logger.Debug("loaded message definition",
		"definition", name,
		"enabled", def.Enabled,
		"interval", def.Interval,
		"output_type", def.Sink.Kind().String(),
		"body_vars", def.BodySet.Len())

	return def, nil
}

// LoadFile builds one definition from a configuration file. The
// definition name is the file name without its extension.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "read "+path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return l.FromDocument(ctx, name, data)
}

// LoadDirectory loads every JSON document in dir into the registry.
// Non-JSON entries, unreadable files, and documents that fail to load are
// reported and skipped; sibling documents still load. The number of
// definitions added is returned.
func (l *Loader) LoadDirectory(ctx context.Context, dir string, reg *Registry) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Loader", "LoadDirectory", "read "+dir)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			l.logger.Debug("skipping non-JSON entry", "dir", dir, "entry", entry.Name())
			continue
		}

		path := filepath.Join(dir, entry.Name())
		def, err := l.LoadFile(ctx, path)
		if err != nil {
			l.logger.Warn("skipping definition that failed to load",
				"path", path,
				"error", err)
			continue
		}

		reg.Add(def)
		loaded++
	}

	return loaded, nil
}

// validateDocument checks raw document bytes against the embedded schema.
func validateDocument(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.WrapInvalid(err, "Loader", "validateDocument", "validate document")
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "validateDocument",
			fmt.Sprintf("document invalid: %s", strings.Join(details, "; ")))
	}

	return nil
}

// parseSetNode classifies a trigger/vars node as query-shaped (object) or
// list-shaped (array).
func parseSetNode(raw json.RawMessage) (setSource, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return setSource{}, errors.WrapInvalid(errors.ErrInvalidArgument, "Loader", "parseSetNode", "empty node")
	}

	switch trimmed[0] {
	case '{':
		var cfg varquery.Config
		if err := json.Unmarshal(trimmed, &cfg); err != nil {
			return setSource{}, errors.WrapInvalid(err, "Loader", "parseSetNode", "decode query")
		}
		return setSource{query: &cfg}, nil

	case '[':
		var list []any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return setSource{}, errors.WrapInvalid(err, "Loader", "parseSetNode", "decode list")
		}
		return setSource{list: list}, nil

	default:
		return setSource{}, errors.WrapInvalid(errors.ErrUnsupported, "Loader", "parseSetNode",
			"trigger/vars must be an object or an array")
	}
}
