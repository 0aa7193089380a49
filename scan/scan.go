// Package scan runs a bounded discovery of advertising peripherals
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/criteria"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/logger"
	"github.com/user/gattlink/radio"
	"github.com/user/gattlink/tracing"
)

// DefaultPreScanWindow is how long a high-power pre-scan runs before the
// scan drops to low power
const DefaultPreScanWindow = time.Second

// ErrPoweredOff is returned when the adapter radio is off
var ErrPoweredOff = errors.New("scan: radio powered off")

// Result is one matching peripheral
type Result struct {
	Address string
	Name    string
	RSSI    int
	Data    *advertising.Data
}

type options struct {
	log           logger.Logger
	preScanWindow time.Duration
	onResult      func(Result)
}

// Option configures Run
type Option func(*options)

// WithLogger routes scan diagnostics to l
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = logger.OrDefault(l) }
}

// WithPreScanWindow overrides DefaultPreScanWindow
func WithPreScanWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.preScanWindow = d
		}
	}
}

// OnResult is called for each newly found peripheral as it is found
func OnResult(fn func(Result)) Option {
	return func(o *options) { o.onResult = fn }
}

// Run scans until the criteria's duration elapses, its limit is reached or
// ctx ends. Results are deduplicated by address in discovery order; a
// repeated report refreshes RSSI and data. A cancelled ctx returns the
// results so far with ctx.Err().
func Run(ctx context.Context, adapter radio.Adapter, c *criteria.Criteria, opts ...Option) ([]Result, error) {
	o := options{log: logger.Nop(), preScanWindow: DefaultPreScanWindow}
	for _, opt := range opts {
		opt(&o)
	}
	if adapter == nil {
		return nil, gatterr.ErrUnsupported
	}
	if !adapter.Powered() {
		return nil, ErrPoweredOff
	}
	if c == nil {
		c = criteria.New()
	}

	parent := ctx
	ctx, span := tracing.StartSpan(ctx, "gatt.scan")
	ctx, cancel := context.WithTimeout(ctx, c.Duration())
	defer cancel()

	// reports never block the scanner; a full buffer drops the report like
	// a busy controller would
	reports := make(chan radio.Advertisement, 256)
	report := func(adv radio.Advertisement) {
		select {
		case reports <- adv:
		default:
		}
	}

	mode := radio.ScanLowPower
	var preScan <-chan time.Time
	if c.HighPowerPreScan() {
		mode = radio.ScanLowLatency
		window := o.preScanWindow
		if window > c.Duration() {
			window = c.Duration()
		}
		timer := time.NewTimer(window)
		defer timer.Stop()
		preScan = timer.C
	}

	if err := adapter.StartScan(mode, report); err != nil {
		err = fmt.Errorf("start scan: %w", err)
		tracing.End(span, err)
		return nil, err
	}
	o.log.Debug("scan", "scanning (%s) for %v, limit %d", mode, c.Duration(), c.Limit())

	found := make(map[string]*Result)
	var order []string
	limitHit := false

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case <-preScan:
			preScan = nil
			adapter.StopScan()
			if err := adapter.StartScan(radio.ScanLowPower, report); err != nil {
				o.log.Warn("scan", "switch to low power: %v", err)
				break loop
			}
			o.log.Debug("scan", "pre-scan window over, low power")

		case adv := <-reports:
			address := strings.ToUpper(adv.Address)
			if !c.AllowsAddress(address) {
				continue
			}
			data := advertising.Parse(adv.Payload)
			if !c.Matches(data) {
				continue
			}
			if r, ok := found[address]; ok {
				r.RSSI = adv.RSSI
				r.Data = data
				if name := data.LocalName(); name != "" {
					r.Name = name
				}
				continue
			}
			r := &Result{Address: address, Name: data.LocalName(), RSSI: adv.RSSI, Data: data}
			found[address] = r
			order = append(order, address)
			o.log.Info("scan", "found %s %q rssi %d", address, r.Name, r.RSSI)
			if o.onResult != nil {
				o.onResult(*r)
			}
			if c.Limit() > 0 && len(order) >= c.Limit() {
				limitHit = true
				break loop
			}
		}
	}

	cancel()
	if err := adapter.StopScan(); err != nil {
		o.log.Warn("scan", "stop scan: %v", err)
	}

	results := make([]Result, 0, len(order))
	for _, address := range order {
		results = append(results, *found[address])
	}
	span.SetAttributes(tracing.IntAttr("scan.results", len(results)))

	var err error
	if !limitHit && parent.Err() != nil {
		err = parent.Err()
	}
	tracing.End(span, err)
	return results, err
}
