package publish

import (
	"testing"

	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/repo"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"NASA_OUTDOOR_TW2_TEMP": "outdoorTw2Temp",
		"VAR_IN_FSV_1031":       "inFsv1031",
		"ENUM_IN_OPERATION":     "inOperation",
		"STR_MODEL_NAME":        "modelName",
		"LVAR_TOTAL_ENERGY":     "totalEnergy",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTopics(t *testing.T) {
	if got := StateTopic("ehsgw", "NASA_OUTDOOR_TW2_TEMP"); got != "ehsgw/entity/outdoorTw2Temp" {
		t.Errorf("StateTopic = %q", got)
	}
	if got := SetTopic("ehsgw", "VAR_IN_FSV_1031"); got != "ehsgw/entity/VAR_IN_FSV_1031/set" {
		t.Errorf("SetTopic = %q", got)
	}
	if got := DiscoveryStateTopic("homeassistant", "sensor", "ehs1", "NASA_OUTDOOR_TW2_TEMP"); got != "homeassistant/sensor/ehs1_outdoorTw2Temp/state" {
		t.Errorf("DiscoveryStateTopic = %q", got)
	}
}

type recordingSink struct {
	topics   []string
	payloads [][]byte
}

func (r *recordingSink) Publish(topic string, payload []byte) error {
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestPublishRendersNumericRounded(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, Config{Prefix: "ehsgw"}, nil)

	entry := &repo.Entry{Name: "NASA_OUTDOOR_TW2_TEMP"}
	err := p.Publish(entry, frame.Value{Numeric: true, Num: 23.456})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(sink.payloads) != 1 || string(sink.payloads[0]) != "23.46" {
		t.Fatalf("payload = %q, want 23.46", sink.payloads[0])
	}
}

func TestHeatOutputDerivationGatedOnAllInputs(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, Config{Prefix: "ehsgw"}, nil)

	outlet := &repo.Entry{Name: "outlet_temp"}
	inlet := &repo.Entry{Name: "inlet_temp"}
	flow := &repo.Entry{Name: "flow_lpm"}

	p.Publish(outlet, frame.Value{Numeric: true, Num: 45})
	if len(sink.topics) != 1 {
		t.Fatalf("expected only the raw publish before all inputs arrive, got %d publishes", len(sink.topics))
	}

	p.Publish(inlet, frame.Value{Numeric: true, Num: 40})
	p.Publish(flow, frame.Value{Numeric: true, Num: 12})

	found := false
	for _, topic := range sink.topics {
		if topic == "ehsgw/entity/heatOutput" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a heatOutput publish once all three inputs arrived, topics: %v", sink.topics)
	}
}

func TestHeatOutputOutOfBoundsNotPublished(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, Config{Prefix: "ehsgw"}, nil)

	p.Publish(&repo.Entry{Name: "outlet_temp"}, frame.Value{Numeric: true, Num: 1000})
	p.Publish(&repo.Entry{Name: "inlet_temp"}, frame.Value{Numeric: true, Num: 0})
	p.Publish(&repo.Entry{Name: "flow_lpm"}, frame.Value{Numeric: true, Num: 1000})

	for _, topic := range sink.topics {
		if topic == "ehsgw/entity/heatOutput" {
			t.Fatalf("expected heatOutput to be gated out of range, but it published")
		}
	}
}

func TestInstantaneousCOPFiresWhenPowerArrivesFirst(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, Config{Prefix: "ehsgw"}, nil)

	// power_consumption arrives before any of heatOutput's own inputs,
	// so instantaneousCOP's inputs only become complete once heatOutput
	// is derived from the later outlet/inlet/flow publishes.
	p.Publish(&repo.Entry{Name: "power_consumption"}, frame.Value{Numeric: true, Num: 500})
	p.Publish(&repo.Entry{Name: "outlet_temp"}, frame.Value{Numeric: true, Num: 45})
	p.Publish(&repo.Entry{Name: "inlet_temp"}, frame.Value{Numeric: true, Num: 40})
	p.Publish(&repo.Entry{Name: "flow_lpm"}, frame.Value{Numeric: true, Num: 12})

	found := false
	for _, topic := range sink.topics {
		if topic == "ehsgw/entity/instantaneousCop" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected instantaneousCop to be derived once heatOutput completed, topics: %v", sink.topics)
	}
}

func TestRenderEnumMissPublishesRaw(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, Config{Prefix: "ehsgw"}, nil)

	entry := &repo.Entry{Name: "ENUM_SOME_STATE"}
	if err := p.Publish(entry, frame.Value{Raw: 2, EnumMiss: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if string(sink.payloads[0]) != "2" {
		t.Fatalf("payload = %q, want 2", sink.payloads[0])
	}
}
