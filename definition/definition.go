// Package definition holds the runtime records for configured variable
// messages: the message definition itself, the insertion-ordered registry
// owning all definitions, and the configuration loader that builds
// definitions from JSON documents.
//
// Each definition exposes status and control variables in the store under
// its prefix: <prefix>/txcount, <prefix>/errcount, <prefix>/enable and
// <prefix>/rescan. Counters are published after every generation attempt;
// the enable and rescan switches are honored on every scheduler pulse.
package definition

import (
	"context"
	"strconv"
	"strings"

	"github.com/tjmonk/varmsg/errors"
	"github.com/tjmonk/varmsg/sink"
	"github.com/tjmonk/varmsg/varcache"
	"github.com/tjmonk/varmsg/varquery"
	"github.com/tjmonk/varmsg/varstore"
)

// Control variable name suffixes under a definition's prefix.
const (
	ctrlTxCount  = "txcount"
	ctrlErrCount = "errcount"
	ctrlEnable   = "enable"
	ctrlRescan   = "rescan"
)

// setSource remembers how a variable set was configured so a rescan can
// re-resolve it. Exactly one of query or list is set.
type setSource struct {
	query *varquery.Config
	list  []any
}

func (s *setSource) empty() bool {
	return s.query == nil && s.list == nil
}

// resolve populates target (allocating it when nil) from the source.
func (s *setSource) resolve(
	ctx context.Context,
	store varstore.Store,
	target *varcache.Cache,
) (*varcache.Cache, error) {
	if s.query != nil {
		return varquery.ResolveQuery(ctx, store, *s.query, target)
	}
	return varquery.ResolveList(ctx, store, s.list, target)
}

// Definition is the runtime record for one configured variable message.
// It is created once at configuration load time and lives for the process
// lifetime; only the scheduler and renderer mutate it, from a single
// control flow, so no locking is needed.
type Definition struct {
	// Name identifies the definition, derived from its configuration
	// source (the document file name).
	Name string

	// Enabled gates generation and transmission. Refreshed from the
	// store's enable switch on every pulse.
	Enabled bool

	// Prefix namespaces the definition's control/status variables.
	// Empty means no control variables are exposed.
	Prefix string

	// Interval is the schedule period in whole seconds. Zero means
	// trigger-only: the countdown path skips the definition entirely.
	Interval int

	// TriggerSet holds the variables whose change is intended to fire
	// generation. The set is resolved and retained but firing is
	// interval-driven only, reproducing the reference behavior.
	TriggerSet *varcache.Cache

	// BodySet holds the variables rendered into the outgoing message.
	BodySet *varcache.Cache

	// Sink is the destination for rendered messages.
	Sink *sink.Sink

	countdown int
	txCount   uint32
	errCount  uint32

	triggerSource setSource
	bodySource    setSource

	hTxCount  varstore.Handle
	hErrCount varstore.Handle
	hEnable   varstore.Handle
	hRescan   varstore.Handle
}

// TickCountdown advances the per-pulse countdown state machine and reports
// whether the definition is due to fire. Disabled and zero-interval
// definitions never move.
func (d *Definition) TickCountdown() bool {
	if !d.Enabled || d.Interval == 0 {
		return false
	}
	if d.countdown > 0 {
		d.countdown--
	}
	if d.countdown == 0 {
		d.countdown = d.Interval
		return true
	}
	return false
}

// Countdown returns the ticks remaining until the next scheduled fire.
func (d *Definition) Countdown() int {
	return d.countdown
}

// TxCount returns the number of completed generations.
func (d *Definition) TxCount() uint32 {
	return d.txCount
}

// ErrCount returns the number of failed generation attempts.
func (d *Definition) ErrCount() uint32 {
	return d.errCount
}

// IncrementTx records one completed generation.
func (d *Definition) IncrementTx() {
	d.txCount++
}

// IncrementErr records one failed generation attempt.
func (d *Definition) IncrementErr() {
	d.errCount++
}

// controlName joins the prefix and a control variable suffix.
func (d *Definition) controlName(suffix string) string {
	return strings.TrimSuffix(d.Prefix, "/") + "/" + suffix
}

// ExposeControls creates the definition's control/status variables in the
// store and seeds them from the current state. A definition without a
// prefix exposes nothing.
func (d *Definition) ExposeControls(ctx context.Context, store varstore.Store) error {
	if d.Prefix == "" {
		return nil
	}

	var err error
	if d.hTxCount, err = store.Create(ctx, d.controlName(ctrlTxCount)); err != nil {
		return errors.Wrap(err, "Definition", "ExposeControls", "create txcount")
	}
	if d.hErrCount, err = store.Create(ctx, d.controlName(ctrlErrCount)); err != nil {
		return errors.Wrap(err, "Definition", "ExposeControls", "create errcount")
	}
	if d.hEnable, err = store.Create(ctx, d.controlName(ctrlEnable)); err != nil {
		return errors.Wrap(err, "Definition", "ExposeControls", "create enable")
	}
	if d.hRescan, err = store.Create(ctx, d.controlName(ctrlRescan)); err != nil {
		return errors.Wrap(err, "Definition", "ExposeControls", "create rescan")
	}

	if err := store.SetValue(ctx, d.hEnable, boolValue(d.Enabled)); err != nil {
		return errors.Wrap(err, "Definition", "ExposeControls", "seed enable")
	}
	if err := store.SetValue(ctx, d.hRescan, "0"); err != nil {
		return errors.Wrap(err, "Definition", "ExposeControls", "seed rescan")
	}
	return d.PublishCounters(ctx, store)
}

// PublishCounters writes the transmit and error counters to the store.
func (d *Definition) PublishCounters(ctx context.Context, store varstore.Store) error {
	if d.hTxCount == varstore.InvalidHandle {
		return nil
	}
	if err := store.SetValue(ctx, d.hTxCount, strconv.FormatUint(uint64(d.txCount), 10)); err != nil {
		return errors.Wrap(err, "Definition", "PublishCounters", "set txcount")
	}
	if err := store.SetValue(ctx, d.hErrCount, strconv.FormatUint(uint64(d.errCount), 10)); err != nil {
		return errors.Wrap(err, "Definition", "PublishCounters", "set errcount")
	}
	return nil
}

// RefreshEnable reads the enable switch from the store and applies it.
func (d *Definition) RefreshEnable(ctx context.Context, store varstore.Store) error {
	if d.hEnable == varstore.InvalidHandle {
		return nil
	}
	value, err := store.GetValue(ctx, d.hEnable)
	if err != nil {
		return errors.Wrap(err, "Definition", "RefreshEnable", "get enable")
	}
	d.Enabled = truthy(value)
	return nil
}

// CheckRescan reads the rescan switch; when set it is cleared and true is
// returned so the caller re-resolves the variable sets.
func (d *Definition) CheckRescan(ctx context.Context, store varstore.Store) (bool, error) {
	if d.hRescan == varstore.InvalidHandle {
		return false, nil
	}
	value, err := store.GetValue(ctx, d.hRescan)
	if err != nil {
		return false, errors.Wrap(err, "Definition", "CheckRescan", "get rescan")
	}
	if !truthy(value) {
		return false, nil
	}
	if err := store.SetValue(ctx, d.hRescan, "0"); err != nil {
		return false, errors.Wrap(err, "Definition", "CheckRescan", "clear rescan")
	}
	return true, nil
}

// Rescan re-resolves the trigger and body variable sets from their saved
// configuration sources, reusing the existing caches.
func (d *Definition) Rescan(ctx context.Context, store varstore.Store) error {
	if !d.triggerSource.empty() {
		d.TriggerSet.Reset()
		if _, err := d.triggerSource.resolve(ctx, store, d.TriggerSet); err != nil {
			return errors.Wrap(err, "Definition", "Rescan", "resolve trigger set")
		}
	}

	d.BodySet.Reset()
	if _, err := d.bodySource.resolve(ctx, store, d.BodySet); err != nil {
		return errors.Wrap(err, "Definition", "Rescan", "resolve body set")
	}
	return nil
}

// Close releases the definition's sink transport.
func (d *Definition) Close() error {
	if d.Sink == nil {
		return nil
	}
	return d.Sink.Close()
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// truthy interprets a control switch value. "1" and "true" (any case)
// enable; everything else disables.
func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true":
		return true
	default:
		return false
	}
}
