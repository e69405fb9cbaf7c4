package relay

import (
	"encoding/json"
	"testing"
)

func TestRelay_Handle(t *testing.T) {
	r := New(nil, "test")

	encode := func(e Event) string {
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return string(data)
	}

	tests := []struct {
		name       string
		payload    string
		wantNotify bool
	}{
		{
			name:       "event from another node",
			payload:    encode(Event{DocumentID: "doc-1", ClientID: "client-1", Node: "other-node"}),
			wantNotify: true,
		},
		{
			name:    "own event",
			payload: encode(Event{DocumentID: "doc-1", ClientID: "client-1", Node: r.NodeID()}),
		},
		{
			name:    "missing document",
			payload: encode(Event{ClientID: "client-1", Node: "other-node"}),
		},
		{
			name:    "malformed payload",
			payload: "{not json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotDoc, gotClient string
			calls := 0
			notified := r.handle(tt.payload, func(documentID, clientID string) {
				calls++
				gotDoc, gotClient = documentID, clientID
			})

			if notified != tt.wantNotify {
				t.Fatalf("handle() = %v, want %v", notified, tt.wantNotify)
			}
			if !tt.wantNotify {
				if calls != 0 {
					t.Errorf("notify called %d times", calls)
				}
				return
			}
			if calls != 1 || gotDoc != "doc-1" || gotClient != "client-1" {
				t.Errorf("notify(%q, %q) called %d times", gotDoc, gotClient, calls)
			}
		})
	}
}

func TestRelay_NodeIDsDiffer(t *testing.T) {
	a, b := New(nil, "test"), New(nil, "test")
	if a.NodeID() == "" || a.NodeID() == b.NodeID() {
		t.Errorf("node ids %q and %q should be unique", a.NodeID(), b.NodeID())
	}
}

func TestEvent_WireFormat(t *testing.T) {
	data, err := json.Marshal(Event{DocumentID: "d", ClientID: "c", Node: "n"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"documentId":"d","clientId":"c","node":"n"}`
	if string(data) != want {
		t.Errorf("Event JSON = %s, want %s", data, want)
	}
}
