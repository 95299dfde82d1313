package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/tinytree/internal/errors"
)

type fakeProcess struct {
	pid        int
	terminated atomic.Int32
}

func (p *fakeProcess) Pid() int { return p.pid }
func (p *fakeProcess) Terminate(time.Duration) { p.terminated.Add(1) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var tick int64
	s.now = func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
	}
	return s
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPlanning, false},
		{StatusImplementing, false},
		{StatusBuilding, false},
		{StatusDeploying, false},
		{StatusDone, true},
		{StatusError, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"light", ModeLight, false},
		{"FULL", ModeFull, false},
		{" light ", ModeLight, false},
		{"medium", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStore_Create(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create("U1_1", "U1", "C1", ModeLight, "todo app")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.Status != StatusPlanning {
		t.Errorf("Status = %q, want planning", sess.Status)
	}
	if sess.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
	if !s.IsUserBusy("U1") {
		t.Error("IsUserBusy() = false after Create")
	}
	if s.IsUserBusy("U2") {
		t.Error("IsUserBusy() = true for unknown user")
	}
}

func TestStore_BusyInvariant(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("U1_1", "U1", "C1", ModeLight, "first"); err != nil {
		t.Fatal(err)
	}

	for _, status := range []Status{StatusPlanning, StatusImplementing, StatusBuilding, StatusDeploying} {
		s.UpdateStatus("U1", status)
		_, err := s.Create("U1_2", "U1", "C1", ModeFull, "second")
		if !errors.Is(err, errors.ErrUserBusy) {
			t.Errorf("status %s: Create() error = %v, want ErrUserBusy", status, err)
		}
	}

	for _, status := range []Status{StatusDone, StatusError, StatusCancelled} {
		s.UpdateStatus("U1", status)
		sess, err := s.Create(fmt.Sprintf("U1_%s", status), "U1", "C1", ModeFull, "again")
		if err != nil {
			t.Errorf("status %s: Create() error = %v", status, err)
			continue
		}
		got, _ := s.FindByUserID("U1")
		if got.RequestID != sess.RequestID {
			t.Errorf("terminal session was not replaced: %q", got.RequestID)
		}
	}
}

func TestStore_CreateConcurrentSameUser(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Create(fmt.Sprintf("U1_%d", i), "U1", "C1", ModeLight, "idea"); err == nil {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("%d concurrent creates succeeded, want 1", created.Load())
	}
}

func TestStore_UpdateStatusDoesNotEnforceTransitions(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "idea")

	s.UpdateStatus("U1", StatusDone)
	if !s.UpdateStatus("U1", StatusPlanning) {
		t.Fatal("UpdateStatus() = false")
	}
	got, _ := s.FindByUserID("U1")
	if got.Status != StatusPlanning {
		t.Errorf("Status = %q, want planning", got.Status)
	}
	if s.UpdateStatus("nobody", StatusDone) {
		t.Error("UpdateStatus() on unknown user = true")
	}
}

func TestStore_Advance(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "idea")

	if !s.Advance("U1", "U1_1", StatusImplementing) {
		t.Error("Advance() on live session = false")
	}
	if s.Advance("U1", "U1_other", StatusBuilding) {
		t.Error("Advance() with foreign request ID = true")
	}

	s.UpdateStatus("U1", StatusCancelled)
	if s.Advance("U1", "U1_1", StatusBuilding) {
		t.Error("Advance() after cancellation = true")
	}
	got, _ := s.FindByUserID("U1")
	if got.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "idea")

	snap, _ := s.FindByUserID("U1")
	snap.Status = StatusDone
	snap.Idea = "mutated"

	got, _ := s.FindByUserID("U1")
	if got.Status != StatusPlanning || got.Idea != "idea" {
		t.Errorf("store mutated through snapshot: %+v", got)
	}
}

func TestStore_FindByRequestID(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "a")
	_, _ = s.Create("U2_1", "U2", "C1", ModeFull, "b")

	got, ok := s.FindByRequestID("U2_1")
	if !ok || got.UserID != "U2" {
		t.Errorf("FindByRequestID() = %+v, %v", got, ok)
	}
	if _, ok := s.FindByRequestID("missing"); ok {
		t.Error("FindByRequestID(missing) found a session")
	}
}

func TestStore_PhaseAndRename(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "todo app")

	s.SetPhase("U1", "build")
	s.Rename("U1", "Groceries")

	got, _ := s.FindByUserID("U1")
	if got.Phase != "build" {
		t.Errorf("Phase = %q", got.Phase)
	}
	if got.Name() != "Groceries" {
		t.Errorf("Name() = %q", got.Name())
	}
	if s.Rename("nobody", "x") {
		t.Error("Rename() on unknown user = true")
	}
}

func TestStore_ProcessHandle(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "idea")

	if _, ok := s.Process("U1"); ok {
		t.Error("Process() before attach reported a handle")
	}

	proc := &fakeProcess{pid: 4242}
	s.AttachProcess("U1", proc)
	got, ok := s.Process("U1")
	if !ok || got.Pid() != 4242 {
		t.Errorf("Process() = %v, %v", got, ok)
	}

	s.DetachProcess("U1")
	if _, ok := s.Process("U1"); ok {
		t.Error("Process() after detach reported a handle")
	}
}

func TestStore_UpdateRequest(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "idea")

	if !s.UpdateRequest("U1", "U1_1", func(sess *Session) { sess.Phase = "plan" }) {
		t.Fatal("UpdateRequest() on the held request = false")
	}
	if s.UpdateRequest("U1", "U1_0", func(sess *Session) { sess.Phase = "stale" }) {
		t.Error("UpdateRequest() with another request id = true")
	}

	s.UpdateStatus("U1", StatusCancelled)
	if s.UpdateRequest("U1", "U1_1", func(sess *Session) { sess.Phase = "build" }) {
		t.Error("UpdateRequest() on a terminal session = true")
	}

	got, _ := s.FindByUserID("U1")
	if got.Phase != "plan" {
		t.Errorf("Phase = %q, want plan", got.Phase)
	}
}

func TestStore_DeleteRequest(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "idea")
	s.UpdateStatus("U1", StatusCancelled)
	_, _ = s.Create("U1_2", "U1", "C1", ModeLight, "idea 2")

	if s.DeleteRequest("U1", "U1_1") {
		t.Error("DeleteRequest() removed a newer session")
	}
	if !s.DeleteRequest("U1", "U1_2") {
		t.Error("DeleteRequest() on current session = false")
	}
	if _, ok := s.FindByUserID("U1"); ok {
		t.Error("session still present")
	}

	_, _ = s.Create("U1_3", "U1", "C1", ModeLight, "idea 3")
	s.DeleteByUserID("U1")
	if s.IsUserBusy("U1") {
		t.Error("IsUserBusy() after DeleteByUserID")
	}
}

func TestStore_ListAndActiveCount(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.Create("U1_1", "U1", "C1", ModeLight, "a")
	_, _ = s.Create("U2_1", "U2", "C1", ModeLight, "b")
	_, _ = s.Create("U3_1", "U3", "C1", ModeLight, "c")
	s.UpdateStatus("U2", StatusDone)

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d", len(list))
	}
	for i, want := range []string{"U1_1", "U2_1", "U3_1"} {
		if list[i].RequestID != want {
			t.Errorf("List()[%d] = %q, want %q", i, list[i].RequestID, want)
		}
	}
	if got := s.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}
}

func TestSession_Elapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := Session{StartedAt: start}
	if got := sess.Elapsed(start.Add(90*time.Second + 400*time.Millisecond)); got != 90*time.Second {
		t.Errorf("Elapsed() = %v", got)
	}
}
