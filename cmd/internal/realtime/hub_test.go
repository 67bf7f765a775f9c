package realtime

import (
	"testing"

	"inkwell/cmd/internal/notebook"
)

func TestHubDeliversToNotebookSubscribers(t *testing.T) {
	h := NewHub(nil)

	a := h.Subscribe("nb1", 4)
	defer a.Close()
	b := h.Subscribe("nb1", 4)
	defer b.Close()
	other := h.Subscribe("nb2", 4)
	defer other.Close()

	ev := notebook.Event{Type: notebook.EventNoteCreated, NotebookID: "nb1", NoteID: "n1"}
	h.Publish("nb1", ev)

	for _, sub := range []*Subscription{a, b} {
		select {
		case got := <-sub.C:
			if got.NoteID != "n1" {
				t.Fatalf("event: %+v", got)
			}
		default:
			t.Fatalf("subscriber did not receive the event")
		}
	}

	select {
	case got := <-other.C:
		t.Fatalf("wrong notebook got event: %+v", got)
	default:
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	h := NewHub(nil)

	sub := h.Subscribe("nb1", 1)
	defer sub.Close()

	h.Publish("nb1", notebook.Event{NoteID: "n1"})
	h.Publish("nb1", notebook.Event{NoteID: "n2"}) // dropped, queue full

	got := <-sub.C
	if got.NoteID != "n1" {
		t.Fatalf("event: %+v", got)
	}
	select {
	case got := <-sub.C:
		t.Fatalf("overflow event delivered: %+v", got)
	default:
	}
}

func TestHubCloseDetaches(t *testing.T) {
	h := NewHub(nil)

	sub := h.Subscribe("nb1", 4)
	sub.Close()
	sub.Close() // idempotent

	h.Publish("nb1", notebook.Event{NoteID: "n1"})
	select {
	case got := <-sub.C:
		t.Fatalf("closed subscription got event: %+v", got)
	default:
	}
}
