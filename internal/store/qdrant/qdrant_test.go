package qdrant

import (
	"testing"
)

func TestPointID_Deterministic(t *testing.T) {
	a := pointID("paper_1_chunk_0")
	b := pointID("paper_1_chunk_0")
	if a.GetUuid() != b.GetUuid() {
		t.Error("same record id must map to the same point id")
	}
	c := pointID("paper_1_chunk_1")
	if a.GetUuid() == c.GetUuid() {
		t.Error("different record ids must map to different point ids")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	meta := map[string]any{
		"paper_id":    "p1",
		"chunk_index": int64(3),
		"score":       0.5,
		"reviewed":    true,
	}
	got := fromPayload(toPayload(meta))
	for k, want := range meta {
		if got[k] != want {
			t.Errorf("key %q: got %v (%T), want %v (%T)", k, got[k], got[k], want, want)
		}
	}
}

func TestToValue_IntWidening(t *testing.T) {
	v := toValue(7)
	if v.GetIntegerValue() != 7 {
		t.Errorf("expected integer value 7, got %v", v)
	}
}

func TestToFilter(t *testing.T) {
	f := toFilter(map[string]any{"paper_id": "p1", "year": 2020})
	if len(f.Must) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(f.Must))
	}
	for _, cond := range f.Must {
		field := cond.GetField()
		if field == nil {
			t.Fatal("expected field condition")
		}
		switch field.Key {
		case "paper_id":
			if field.Match.GetKeyword() != "p1" {
				t.Errorf("unexpected keyword match %v", field.Match)
			}
		case "year":
			if field.Match.GetInteger() != 2020 {
				t.Errorf("unexpected integer match %v", field.Match)
			}
		default:
			t.Errorf("unexpected key %q", field.Key)
		}
	}
}
