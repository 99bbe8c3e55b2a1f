// Package render walks a message definition's body variable set and
// produces the outgoing JSON object line.
package render

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/tjmonk/varmsg/definition"
	"github.com/tjmonk/varmsg/errors"
	"github.com/tjmonk/varmsg/varstore"
)

// Renderer renders message definitions against the variable store. One
// transient format buffer is shared across the whole process, so value
// stringification is strictly sequential: acquire, print, read back,
// reset, release, one variable at a time.
type Renderer struct {
	store  varstore.Store
	logger *slog.Logger

	fmtMu  sync.Mutex
	fmtBuf bytes.Buffer
}

// New creates a renderer bound to a store.
func New(store varstore.Store, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		store:  store,
		logger: logger,
	}
}

// Render produces the JSON object line for the definition's body variable
// set: one member per variable in set order, framed as "{ ...}\n". Any
// fetch failure for an individual variable fails the whole render and
// increments the definition's error counter; a completed render increments
// the transmit counter exactly once.
func (r *Renderer) Render(ctx context.Context, def *definition.Definition) ([]byte, error) {
	var out bytes.Buffer
	out.WriteByte('{')

	count := 0
	err := def.BodySet.ForEach(func(h varstore.Handle) error {
		info, err := r.store.Info(ctx, h)
		if err != nil {
			return errors.Wrap(err, "Renderer", "Render", "variable info")
		}

		value, err := r.formatValue(ctx, h)
		if err != nil {
			return errors.Wrap(err, "Renderer", "Render", "variable value")
		}

		if count == 0 {
			out.WriteByte(' ')
		} else {
			out.WriteByte(',')
		}
		writeMember(&out, info, value)
		count++
		return nil
	})
	if err != nil {
		def.IncrementErr()
		return nil, err
	}

	out.WriteByte('}')
	out.WriteByte('\n')

	def.IncrementTx()
	r.logger.Debug("rendered message",
		"definition", def.Name,
		"variables", count,
		"bytes", out.Len())

	return out.Bytes(), nil
}

// formatValue stringifies one variable through the shared format buffer.
func (r *Renderer) formatValue(ctx context.Context, h varstore.Handle) (string, error) {
	r.fmtMu.Lock()
	defer r.fmtMu.Unlock()

	r.fmtBuf.Reset()
	if err := r.store.Print(ctx, h, &r.fmtBuf); err != nil {
		return "", err
	}
	return r.fmtBuf.String(), nil
}

// writeMember emits one `"key":value` member. The key is the variable name,
// prefixed with "[<instanceID>]" when the instance id is nonzero. Values
// that are themselves JSON are embedded raw; everything else is quoted.
func writeMember(out *bytes.Buffer, info varstore.Info, value string) {
	out.WriteByte('"')
	if info.InstanceID != 0 {
		out.WriteByte('[')
		out.WriteString(strconv.Itoa(info.InstanceID))
		out.WriteByte(']')
	}
	out.WriteString(info.Name)
	out.WriteByte('"')
	out.WriteByte(':')

	if IsJSON(value) {
		out.WriteString(value)
	} else {
		b := out.AvailableBuffer()
		out.Write(strconv.AppendQuote(b, value))
	}
}

// IsJSON reports whether the value looks like a JSON array or object: the
// first and last non-whitespace characters must form a matching `[`...`]`
// or `{`...`}` pair. Empty or all-whitespace values are never JSON.
func IsJSON(value string) bool {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 {
		return false
	}

	first := trimmed[0]
	last := trimmed[len(trimmed)-1]
	return (first == '[' && last == ']') || (first == '{' && last == '}')
}
