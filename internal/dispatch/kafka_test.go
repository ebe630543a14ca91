package dispatch

import "testing"

func TestBuildKafkaEnvelopeAdaptsItems(t *testing.T) {
	batch := []Item{
		{Data: map[string]string{"player": "Bob"}, Sheet: "player_death"},
		{Data: map[string]string{"player": "Alice"}, Sheet: "vehicle_destroyed"},
	}
	envelope := buildKafkaEnvelope("sclog-core", batch)

	if envelope.Source != "sclog-core" {
		t.Fatalf("expected source to be set, got %q", envelope.Source)
	}
	if envelope.BatchID == "" {
		t.Fatal("expected a generated batch id")
	}
	if len(envelope.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(envelope.Events))
	}
	for i, item := range batch {
		if envelope.Events[i].EventType != item.Sheet {
			t.Fatalf("event %d: expected type %q, got %q", i, item.Sheet, envelope.Events[i].EventType)
		}
		if envelope.Events[i].EventID == "" {
			t.Fatalf("event %d: expected a generated event id", i)
		}
		if envelope.Events[i].Data["player"] != item.Data["player"] {
			t.Fatalf("event %d: data not preserved", i)
		}
	}
}

func TestBuildKafkaEnvelopeUniqueEventIDs(t *testing.T) {
	batch := []Item{{Sheet: "a"}, {Sheet: "b"}}
	envelope := buildKafkaEnvelope("src", batch)
	if envelope.Events[0].EventID == envelope.Events[1].EventID {
		t.Fatal("expected distinct event ids per item")
	}
}
