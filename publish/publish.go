// Package publish is C9: it turns a decoded message into a pub/sub state
// update and maintains the stateful aggregate derivations (heat output,
// instantaneous COP, seasonal COP). The per-variable decoded-value
// rendering is grounded on the teacher's MonitorDelegate fan-out
// (values flow out through one narrow Sink interface instead of a dozen
// typed callbacks, since this bus has one payload shape, not eleven
// ASDU types); the aggregate cache follows track.Head's sync.Map latest-
// value pattern.
package publish

import (
	"strconv"
	"sync"

	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/repo"
	"github.com/sirupsen/logrus"
)

// Sink accepts a rendered state update. The MQTT-backed implementation
// lives in mqtt.go; tests use a recording fake.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// Config controls topic shape; DiscoveryRoot/Platform/DeviceID are only
// used when Discovery is true (spec §6).
type Config struct {
	Prefix string

	Discovery     bool
	DiscoveryRoot string
	Platform      string
	DeviceID      string
}

// Publisher renders decoded values onto Sink and derives the aggregate
// metrics described in spec §4.9.
type Publisher struct {
	sink Sink
	cfg  Config
	log  *logrus.Entry

	agg *aggregates
}

// New returns a Publisher writing through sink.
func New(sink Sink, cfg Config, log *logrus.Entry) *Publisher {
	return &Publisher{sink: sink, cfg: cfg, log: log, agg: newAggregates()}
}

// Publish renders one decoded value and republishes it, then feeds the
// aggregate tracker with the decoded numeric value if the variable name
// is one of the tracked inputs.
func (p *Publisher) Publish(entry *repo.Entry, v frame.Value) error {
	topic := p.topicFor(entry.Name)
	payload := render(v)

	if err := p.sink.Publish(topic, payload); err != nil {
		return err
	}

	if v.Numeric {
		for _, deriv := range p.agg.observe(entry.Name, v.Num) {
			p.publishDerived(deriv)
		}
	}

	return nil
}

func (p *Publisher) topicFor(name string) string {
	if p.cfg.Discovery {
		return DiscoveryStateTopic(p.cfg.DiscoveryRoot, p.cfg.Platform, p.cfg.DeviceID, name)
	}
	return StateTopic(p.cfg.Prefix, name)
}

func (p *Publisher) publishDerived(d derived) {
	topic := p.cfg.Prefix + "/entity/" + d.name
	if p.cfg.Discovery {
		topic = p.cfg.DiscoveryRoot + "/" + p.cfg.Platform + "/" + p.cfg.DeviceID + "_" + d.name + "/state"
	}
	if err := p.sink.Publish(topic, []byte(formatFloat(d.value))); err != nil && p.log != nil {
		p.log.WithField("metric", d.name).WithError(err).Warn("publish: failed to publish derived metric")
	}
}

// render turns a decoded Value into its wire payload: enum labels and
// strings pass through verbatim, non-integral numerics round to 2
// decimals (spec §4.9), and an enum miss publishes the raw numeric id so
// operators still see something instead of nothing.
func render(v frame.Value) []byte {
	switch {
	case v.Str != "" && !v.Numeric:
		return []byte(v.Str)
	case v.EnumMiss:
		return []byte(strconv.FormatInt(v.Raw, 10))
	case v.Numeric:
		return []byte(formatFloat(v.Num))
	default:
		return []byte(strconv.FormatInt(v.Raw, 10))
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(round2(f), 'f', -1, 64)
}

func round2(f float64) float64 {
	const places = 100
	if f >= 0 {
		return float64(int64(f*places+0.5)) / places
	}
	return float64(int64(f*places-0.5)) / places
}

// derived names one computed metric ready to publish.
type derived struct {
	name  string
	value float64
}

// aggregate input names, the only ones the derivation tracker watches.
const (
	nameOutletTemp       = "outlet_temp"
	nameInletTemp        = "inlet_temp"
	nameFlowLPM          = "flow_lpm"
	namePowerConsumed    = "power_consumption"
	nameTotalGenerated   = "total_generated_energy"
	nameTotalConsumed    = "total_consumed_energy"
	nameHeatOutput       = "heatOutput"
	nameInstantaneousCOP = "instantaneousCop"
	nameSeasonalCOP      = "seasonalCop"
)

// aggregates tracks the latest raw inputs needed for C9's stateful
// derivations and recomputes them whenever a relevant input arrives.
type aggregates struct {
	mu sync.Mutex

	values map[string]float64
}

func newAggregates() *aggregates {
	return &aggregates{values: make(map[string]float64)}
}

// observe records name's latest value and recomputes every derivation it
// feeds, directly or transitively (heatOutput feeds instantaneousCOP), so
// a derivation fires as soon as all of its inputs are present regardless
// of which one arrived last.
func (a *aggregates) observe(name string, value float64) []derived {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.values[name] = value

	var out []derived
	switch name {
	case nameOutletTemp, nameInletTemp, nameFlowLPM:
		if d, ok := a.heatOutput(); ok {
			out = append(out, d)
			if d2, ok := a.instantaneousCOP(); ok {
				out = append(out, d2)
			}
		}
	case namePowerConsumed:
		if d, ok := a.instantaneousCOP(); ok {
			out = append(out, d)
		}
	case nameTotalGenerated, nameTotalConsumed:
		if d, ok := a.seasonalCOP(); ok {
			out = append(out, d)
		}
	}
	return out
}

func (a *aggregates) heatOutput() (derived, bool) {
	outlet, ok1 := a.values[nameOutletTemp]
	inlet, ok2 := a.values[nameInletTemp]
	flow, ok3 := a.values[nameFlowLPM]
	if !ok1 || !ok2 || !ok3 {
		return derived{}, false
	}

	w := absFloat(outlet-inlet) * (flow / 60) * 4190
	if w <= 0 || w >= 15000 {
		return derived{}, false
	}

	a.values[nameHeatOutput] = w
	return derived{name: nameHeatOutput, value: w}, true
}

func (a *aggregates) instantaneousCOP() (derived, bool) {
	heat, ok1 := a.values[nameHeatOutput]
	power, ok2 := a.values[namePowerConsumed]
	if !ok1 || !ok2 || power <= 0 {
		return derived{}, false
	}

	cop := heat / power
	if cop <= 0 || cop >= 20 {
		return derived{}, false
	}
	return derived{name: nameInstantaneousCOP, value: cop}, true
}

func (a *aggregates) seasonalCOP() (derived, bool) {
	generated, ok1 := a.values[nameTotalGenerated]
	consumed, ok2 := a.values[nameTotalConsumed]
	if !ok1 || !ok2 || consumed <= 0 {
		return derived{}, false
	}

	cop := generated / consumed
	if cop <= 0 || cop >= 20 {
		return derived{}, false
	}
	return derived{name: nameSeasonalCOP, value: cop}, true
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
