package ws

import (
	"errors"
	"testing"
)

type fakeConn struct {
	wrote  []any
	closed bool
	fail   bool
}

func (f *fakeConn) WriteJSON(v any) error {
	if f.fail {
		return errors.New("broken pipe")
	}
	f.wrote = append(f.wrote, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestPushDeliversToRegisteredUser(t *testing.T) {
	h := NewHub()
	c := &fakeConn{}
	h.Register("user-1", c)

	if !h.Push("user-1", map[string]string{"type": "new_message"}) {
		t.Fatal("push to a registered user should deliver")
	}
	if len(c.wrote) != 1 {
		t.Fatalf("writes: got %d, want 1", len(c.wrote))
	}
	if h.Push("user-2", "x") {
		t.Fatal("push to an unknown user should report no delivery")
	}
}

func TestRegisterReplacesAndClosesOld(t *testing.T) {
	h := NewHub()
	old := &fakeConn{}
	h.Register("user-1", old)
	fresh := &fakeConn{}
	h.Register("user-1", fresh)

	if !old.closed {
		t.Fatal("replaced connection should be closed")
	}
	h.Push("user-1", "hello")
	if len(old.wrote) != 0 || len(fresh.wrote) != 1 {
		t.Fatal("pushes should reach the new connection only")
	}
}

func TestUnregisterOnlyRemovesCurrent(t *testing.T) {
	h := NewHub()
	old := &fakeConn{}
	h.Register("user-1", old)
	fresh := &fakeConn{}
	h.Register("user-1", fresh)

	// The old connection's deferred cleanup must not evict its successor.
	h.Unregister("user-1", old)
	if !h.Push("user-1", "still here") {
		t.Fatal("current connection should survive the old one's unregister")
	}

	h.Unregister("user-1", fresh)
	if h.Push("user-1", "gone") {
		t.Fatal("push after unregister should report no delivery")
	}
}

func TestPushEvictsOnWriteError(t *testing.T) {
	h := NewHub()
	c := &fakeConn{fail: true}
	h.Register("user-1", c)

	if h.Push("user-1", "x") {
		t.Fatal("failed write should report no delivery")
	}
	if !c.closed {
		t.Fatal("failed connection should be closed")
	}
	if h.Push("user-1", "x") {
		t.Fatal("failed connection should be evicted")
	}
}
