package realtime

import "testing"

func TestNewRoomStore(t *testing.T) {
	s := NewRoomStore[string]()
	if s == nil {
		t.Fatal("NewRoomStore returned nil")
	}
}

func TestRoomStore_Create_Get(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("room1", "state1")
	room, ok := s.Get("room1")
	if !ok {
		t.Fatal("Get returned false for existing room")
	}
	if room.ID != "room1" {
		t.Errorf("room ID %q, want room1", room.ID)
	}
	if room.State != "state1" {
		t.Errorf("room State %q, want state1", room.State)
	}
	if room.Hub() == nil {
		t.Error("room should carry a broadcaster")
	}

	_, ok = s.Get("nonexistent")
	if ok {
		t.Error("Get should return false for missing ID")
	}
}

func TestRoomStore_Publish(t *testing.T) {
	s := NewRoomStore[string]()
	s.Create("r1", "x")
	hub, ok := s.Broadcaster("r1")
	if !ok {
		t.Fatal("Broadcaster returned false for existing room")
	}
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	s.Publish("r1", Event{Name: "event1"})
	got := <-ch
	if got.Name != "event1" {
		t.Errorf("got %q, want event1", got.Name)
	}
}

func TestRoomStore_PublishUnknownRoomIsNoop(t *testing.T) {
	s := NewRoomStore[string]()
	s.Publish("nope", Event{Name: "x"})
	if _, ok := s.Broadcaster("nope"); ok {
		t.Error("Broadcaster should not create rooms")
	}
}

func TestRoomStore_DeleteClosesSubscribers(t *testing.T) {
	s := NewRoomStore[string]()
	r := s.Create("r1", "x")
	ch := r.Hub().Subscribe()

	if !s.Delete("r1") {
		t.Fatal("Delete returned false for existing room")
	}
	if _, open := <-ch; open {
		t.Error("subscriber channel should be closed after Delete")
	}
	if s.Delete("r1") {
		t.Error("second Delete should return false")
	}
	if s.Len() != 0 {
		t.Errorf("Len %d, want 0", s.Len())
	}
}

func TestRoomStore_RangeIsOrderedAndStoppable(t *testing.T) {
	s := NewRoomStore[int]()
	s.Create("c", 3)
	s.Create("a", 1)
	s.Create("b", 2)

	var seen []string
	s.Range(func(r *Room[int]) bool {
		seen = append(seen, r.ID)
		return len(seen) < 2
	})
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("seen %v, want [a b]", seen)
	}
}
