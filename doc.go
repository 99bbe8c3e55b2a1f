// Package varmsg provides a periodic variable message generator: it
// collects named sets of variables from a variable store, renders each
// set as a single JSON object, and pushes the resulting messages to
// configurable sinks on a fixed interval schedule.
//
// # Architecture
//
// The generator is a small pipeline driven by a timing pulse:
//
//	┌─────────────────────────────────────┐
//	│             Engine                  │  Pulse loop, countdowns,
//	│   (tick, rescan, enable switches)   │  error isolation
//	└─────────────────────────────────────┘
//	           ↓ walks
//	┌─────────────────────────────────────┐
//	│      Definition Registry            │  Message definitions with
//	│   (trigger set, body set, sink)     │  resolved variable sets
//	└─────────────────────────────────────┘
//	           ↓ renders via
//	┌─────────────────────────────────────┐
//	│       Renderer + Store              │  One JSON object line per
//	│   (fetch, stringify, frame)         │  generation
//	└─────────────────────────────────────┘
//	           ↓ dispatches to
//	┌─────────────────────────────────────┐
//	│             Sinks                   │  stdout, mqueue (NATS),
//	│                                     │  file, disabled
//	└─────────────────────────────────────┘
//
// # Packages
//
// Core pipeline:
//   - definition: message definitions, document loading, control variables
//   - varquery: variable set resolution from queries and explicit lists
//   - varcache: ordered, duplicate-free handle sets
//   - render: JSON object line rendering
//   - sink: output dispatch (disabled, stdout, mqueue, file)
//   - engine: the pulse loop
//
// Infrastructure:
//   - varstore: variable store contract and in-memory implementation
//   - natsclient: NATS connection for mqueue sinks
//   - metric: Prometheus metrics and the metrics HTTP server
//   - errors: classified error handling
//   - pkg/retry: classification-aware exponential backoff
//
// # Message Format
//
// Each generation produces one newline-terminated JSON object. Members
// appear in variable set order; keys carry a "[<instance>]" prefix for
// nonzero instance ids, and values that are themselves JSON arrays or
// objects are embedded raw:
//
//	{ "temperature":"21.4", "[2]fan_rpm":"1200", "readings":[1,2,3]}
//
// # Control Variables
//
// A definition with a prefix exposes four control variables in the
// store: <prefix>/txcount, <prefix>/errcount, <prefix>/enable and
// <prefix>/rescan. The enable switch pauses generation; the rescan
// switch re-resolves the definition's variable sets and clears itself.
//
// # Binary
//
// Build and run the generator:
//
//	go build -o bin/varmsg ./cmd/varmsg
//
//	# Generate from one definition file
//	./bin/varmsg -f configs/metrics.json
//
//	# Load a directory of definitions, publish over NATS
//	./bin/varmsg -d /etc/varmsg/conf.d -nats-url nats://localhost:4222
package varmsg
