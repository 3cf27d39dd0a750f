package keydir

import "testing"

func TestPutGet(t *testing.T) {
	k := New()
	k.Put("a", Entry{SegmentID: 1, Offset: 10, Timestamp: 5})

	e, ok := k.Get("a")
	if !ok {
		t.Fatal("expected key to be present")
	}
	if e.SegmentID != 1 || e.Offset != 10 {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestDelete(t *testing.T) {
	k := New()
	k.Put("a", Entry{Timestamp: 1})
	k.Delete("a")

	if _, ok := k.Get("a"); ok {
		t.Fatal("expected key to be absent after delete")
	}
}

func TestObserveNewerTimestampWins(t *testing.T) {
	k := New()
	k.Observe("a", Entry{Timestamp: 10, SegmentID: 1, Offset: 0})
	won := k.Observe("a", Entry{Timestamp: 20, SegmentID: 1, Offset: 100})

	if !won {
		t.Fatal("expected newer timestamp to win")
	}
	e, _ := k.Get("a")
	if e.Timestamp != 20 {
		t.Errorf("expected timestamp 20, got %d", e.Timestamp)
	}
}

func TestObserveOlderTimestampLoses(t *testing.T) {
	k := New()
	k.Observe("a", Entry{Timestamp: 20, SegmentID: 1, Offset: 0})
	won := k.Observe("a", Entry{Timestamp: 10, SegmentID: 2, Offset: 0})

	if won {
		t.Fatal("expected older timestamp to lose")
	}
	e, _ := k.Get("a")
	if e.Timestamp != 20 {
		t.Errorf("entry was overwritten by older timestamp: %+v", e)
	}
}

func TestObserveTieBreaksBySegmentThenOffset(t *testing.T) {
	k := New()
	k.Observe("a", Entry{Timestamp: 5, SegmentID: 1, Offset: 50})

	// Same timestamp, higher segment id wins.
	if !k.Observe("a", Entry{Timestamp: 5, SegmentID: 2, Offset: 0}) {
		t.Fatal("expected higher segment id to win tie")
	}

	// Same timestamp and segment, higher offset wins.
	if !k.Observe("a", Entry{Timestamp: 5, SegmentID: 2, Offset: 999}) {
		t.Fatal("expected higher offset to win tie")
	}

	e, _ := k.Get("a")
	if e.SegmentID != 2 || e.Offset != 999 {
		t.Errorf("unexpected final entry: %+v", e)
	}
}

func TestObserveDeleteNewerTombstoneWins(t *testing.T) {
	k := New()
	k.Observe("a", Entry{Timestamp: 10, SegmentID: 1, Offset: 0})

	won := k.ObserveDelete("a", Entry{Timestamp: 20, SegmentID: 1, Offset: 100, Tombstone: true})
	if !won {
		t.Fatal("expected newer tombstone to win")
	}
	if _, ok := k.Get("a"); ok {
		t.Fatal("expected key to be absent after a winning tombstone")
	}
}

func TestObserveDeleteOlderTombstoneLosesToNewerPut(t *testing.T) {
	k := New()
	// A put with a larger timestamp is already indexed — e.g. because
	// recovery observed a clock-regressed tombstone after it.
	k.Observe("a", Entry{Timestamp: 20, SegmentID: 2, Offset: 0})

	won := k.ObserveDelete("a", Entry{Timestamp: 10, SegmentID: 1, Offset: 50, Tombstone: true})
	if won {
		t.Fatal("expected older tombstone to lose to the already-applied put")
	}
	e, ok := k.Get("a")
	if !ok {
		t.Fatal("expected the newer put to still be indexed")
	}
	if e.Timestamp != 20 {
		t.Errorf("put was overwritten by an older tombstone: %+v", e)
	}
}

func TestObserveDeleteOnAbsentKeyWins(t *testing.T) {
	k := New()
	won := k.ObserveDelete("a", Entry{Timestamp: 1, Tombstone: true})
	if !won {
		t.Fatal("expected tombstone for an absent key to win")
	}
	if _, ok := k.Get("a"); ok {
		t.Fatal("expected key to remain absent")
	}
}

func TestKeysAndLen(t *testing.T) {
	k := New()
	k.Put("a", Entry{})
	k.Put("b", Entry{})

	if k.Len() != 2 {
		t.Fatalf("expected length 2, got %d", k.Len())
	}
	keys := k.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}
