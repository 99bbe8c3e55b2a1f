// Package sink routes rendered messages to their configured destinations.
package sink

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/tjmonk/varmsg/errors"
)

// Kind identifies the destination variant for a rendered message.
type Kind int

// Destination kinds. Unrecognized configuration strings parse as
// KindDisabled.
const (
	KindDisabled Kind = iota
	KindStdout
	KindMQueue
	KindFile
)

// kindNames must stay in the same order as the Kind constants.
var kindNames = []string{"disabled", "stdout", "mqueue", "file"}

// String returns the configuration name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind maps an output_type string to its Kind. Unknown values
// silently become KindDisabled.
func ParseKind(s string) Kind {
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return KindDisabled
}

// Publisher publishes a payload to a message queue subject. The NATS
// client satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Options carries the transports available to sinks. Zero-value fields
// leave the corresponding sink kinds unimplemented; dispatching to them
// fails loudly instead of silently dropping the message.
type Options struct {
	Stdout    io.Writer
	Publisher Publisher
	Logger    *slog.Logger
}

// Sink is one configured destination. File handles are opened when the
// sink is opened, at definition load time, and closed on shutdown.
type Sink struct {
	kind      Kind
	name      string
	stdout    io.Writer
	publisher Publisher
	subject   string
	logger    *slog.Logger

	fileMu sync.Mutex
	file   *os.File
}

// Open creates the sink for an output_type / output pair. An unknown
// output_type becomes a disabled sink. Opening a file sink creates or
// appends to the named file immediately so configuration errors surface
// at load time.
func Open(outputType, output string, opts Options) (*Sink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sink{
		kind:      ParseKind(outputType),
		name:      output,
		stdout:    opts.Stdout,
		publisher: opts.Publisher,
		logger:    logger,
	}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}

	switch s.kind {
	case KindDisabled, KindStdout:
		// no transport to prepare
	case KindMQueue:
		s.subject = Subject(output)
		if s.subject == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "Open", "mqueue sink needs an output subject")
		}
	case KindFile:
		if output == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "Open", "file sink needs an output path")
		}
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.WrapFatal(err, "Sink", "Open", "open output file")
		}
		s.file = f
	}

	return s, nil
}

// Kind returns the sink's destination kind.
func (s *Sink) Kind() Kind {
	return s.kind
}

// Name returns the configured destination identifier.
func (s *Sink) Name() string {
	return s.name
}

// Dispatch routes one fully rendered message to the destination. The
// rendered bytes are written verbatim. A kind whose transport was never
// attached fails with ErrNotImplemented.
func (s *Sink) Dispatch(msg []byte) error {
	switch s.kind {
	case KindDisabled:
		return nil

	case KindStdout:
		if _, err := s.stdout.Write(msg); err != nil {
			return errors.WrapTransient(err, "Sink", "Dispatch", "write stdout")
		}
		return nil

	case KindMQueue:
		if s.publisher == nil {
			return errors.WrapFatal(errors.ErrNotImplemented, "Sink", "Dispatch", "mqueue transport not attached")
		}
		if err := s.publisher.Publish(s.subject, msg); err != nil {
			return errors.WrapTransient(err, "Sink", "Dispatch", "publish "+s.subject)
		}
		return nil

	case KindFile:
		s.fileMu.Lock()
		defer s.fileMu.Unlock()
		if s.file == nil {
			return errors.WrapFatal(errors.ErrNotImplemented, "Sink", "Dispatch", "file transport not attached")
		}
		if _, err := s.file.Write(msg); err != nil {
			return errors.WrapTransient(err, "Sink", "Dispatch", "write file")
		}
		return nil

	default:
		return errors.WrapFatal(errors.ErrNotImplemented, "Sink", "Dispatch", "unknown sink kind")
	}
}

// Close releases any transport handle the sink owns.
func (s *Sink) Close() error {
	if s.kind != KindFile {
		return nil
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return errors.WrapTransient(err, "Sink", "Close", "close output file")
	}
	return nil
}

// Subject derives a message queue subject from a destination name:
// leading separators are trimmed and path separators become subject
// token separators ("/metrics/fast" -> "metrics.fast").
func Subject(name string) string {
	trimmed := strings.Trim(name, "/")
	return strings.ReplaceAll(trimmed, "/", ".")
}
