package provider

import (
	"errors"
	"testing"

	"github.com/backkem/hace/pkg/hace"
	"github.com/pion/logging"
)

func newTestMulti(t *testing.T, n int) (*Multi, *hace.Context) {
	t.Helper()
	hw := &hace.Context{}
	m, err := NewMulti(hw, MultiConfig{MaxSessions: n, LoggerFactory: logging.NewDefaultLoggerFactory()})
	if err != nil {
		t.Fatalf("NewMulti() error = %v", err)
	}
	return m, hw
}

func mustAllocate(t *testing.T, m *Multi) int {
	t.Helper()
	id, err := m.AllocateSession()
	if err != nil {
		t.Fatalf("AllocateSession() error = %v", err)
	}
	return id
}

func mustContext(t *testing.T, m *Multi) *hace.Context {
	t.Helper()
	ctx, err := m.Context()
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	return ctx
}

func TestNewMulti(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		want    int
		wantErr bool
	}{
		{"default", 0, MaxSessions, false},
		{"one", 1, 1, false},
		{"max", MaxSessions, MaxSessions, false},
		{"too many", MaxSessions + 1, 0, true},
		{"negative", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMulti(&hace.Context{}, MultiConfig{MaxSessions: tt.n})
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSessionCount) {
					t.Errorf("NewMulti() error = %v, want ErrInvalidSessionCount", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewMulti() error = %v", err)
			}
			if got := m.MaxSessions(); got != tt.want {
				t.Errorf("MaxSessions() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := NewMulti(nil, MultiConfig{}); !errors.Is(err, ErrNilContext) {
		t.Errorf("NewMulti(nil) error = %v, want ErrNilContext", err)
	}
}

func TestMulti_AllocateExhaustReuse(t *testing.T) {
	m, _ := newTestMulti(t, 4)

	for want := 0; want < 4; want++ {
		if got := mustAllocate(t, m); got != want {
			t.Errorf("AllocateSession() = %d, want %d", got, want)
		}
	}
	if got := m.AllocatedCount(); got != 4 {
		t.Errorf("AllocatedCount() = %d, want 4", got)
	}

	if _, err := m.AllocateSession(); !errors.Is(err, ErrNoSessionsAvailable) {
		t.Fatalf("AllocateSession() on full provider error = %v, want ErrNoSessionsAvailable", err)
	}

	if err := m.ReleaseSession(2); err != nil {
		t.Fatalf("ReleaseSession(2) error = %v", err)
	}
	if m.IsSessionAllocated(2) {
		t.Error("IsSessionAllocated(2) = true after release")
	}
	if got := mustAllocate(t, m); got != 2 {
		t.Errorf("AllocateSession() after release = %d, want 2", got)
	}
	if _, err := m.AllocateSession(); !errors.Is(err, ErrNoSessionsAvailable) {
		t.Errorf("AllocateSession() error = %v, want ErrNoSessionsAvailable", err)
	}
}

func TestMulti_InvalidIDs(t *testing.T) {
	m, _ := newTestMulti(t, 2)
	mustAllocate(t, m)

	tests := []struct {
		name string
		id   int
		want error
	}{
		{"negative", -1, ErrSessionOutOfBounds},
		{"past capacity", 2, ErrSessionOutOfBounds},
		{"past arena", MaxSessions, ErrSessionOutOfBounds},
		{"free slot", 1, ErrSessionNotAllocated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.SetActiveSession(tt.id); !errors.Is(err, tt.want) {
				t.Errorf("SetActiveSession(%d) error = %v, want %v", tt.id, err, tt.want)
			}
			if err := m.ReleaseSession(tt.id); !errors.Is(err, tt.want) {
				t.Errorf("ReleaseSession(%d) error = %v, want %v", tt.id, err, tt.want)
			}
			if m.IsSessionAllocated(tt.id) {
				t.Errorf("IsSessionAllocated(%d) = true", tt.id)
			}
		})
	}
}

func TestMulti_ContextWithoutSession(t *testing.T) {
	m, _ := newTestMulti(t, 2)
	_, err := m.Context()
	if !errors.Is(err, ErrContextSwitchFailed) || !errors.Is(err, ErrSessionNotAllocated) {
		t.Errorf("Context() error = %v, want ErrContextSwitchFailed wrapping ErrSessionNotAllocated", err)
	}
}

func TestMulti_LazySwitch(t *testing.T) {
	m, hw := newTestMulti(t, 4)
	a := mustAllocate(t, m)
	b := mustAllocate(t, m)

	if err := m.SetActiveSession(a); err != nil {
		t.Fatalf("SetActiveSession() error = %v", err)
	}
	if _, ok := m.LastLoaded(); ok {
		t.Error("LastLoaded() reported a session before any access")
	}

	ctx := mustContext(t, m)
	if ctx != hw {
		t.Fatal("Context() did not return the hardware context")
	}
	ctx.Buffer[0] = 'A'
	ctx.BufferCount = 1

	// Selecting a session copies nothing.
	if err := m.SetActiveSession(b); err != nil {
		t.Fatalf("SetActiveSession() error = %v", err)
	}
	if hw.Buffer[0] != 'A' {
		t.Error("SetActiveSession() modified the hardware context")
	}
	if got, _ := m.LastLoaded(); got != a {
		t.Errorf("LastLoaded() = %d, want %d", got, a)
	}

	ctx = mustContext(t, m)
	if ctx.BufferCount != 0 || ctx.Buffer[0] != 0 {
		t.Errorf("session b sees %d buffered bytes, want fresh state", ctx.BufferCount)
	}
	ctx.Buffer[0] = 'B'
	ctx.BufferCount = 1

	if err := m.SetActiveSession(a); err != nil {
		t.Fatalf("SetActiveSession() error = %v", err)
	}
	ctx = mustContext(t, m)
	if ctx.Buffer[0] != 'A' || ctx.BufferCount != 1 {
		t.Errorf("session a restored buffer %q/%d, want 'A'/1", ctx.Buffer[0], ctx.BufferCount)
	}

	// Repeated access to the resident session does not switch.
	before := m.Stats()
	mustContext(t, m)
	mustContext(t, m)
	if got := m.Stats(); got != before {
		t.Errorf("Stats() = %+v after resident access, want %+v", got, before)
	}
	if before.Switches != 3 || before.Saves != 2 {
		t.Errorf("Stats() = %+v, want 3 switches and 2 saves", before)
	}
	if got := m.ActiveSession(); got != a {
		t.Errorf("ActiveSession() = %d, want %d", got, a)
	}
}

func TestMulti_SwitchPreservesDescriptors(t *testing.T) {
	m, hw := newTestMulti(t, 2)
	a := mustAllocate(t, m)
	b := mustAllocate(t, m)

	m.SetActiveSession(a)
	ctx := mustContext(t, m)
	ctx.SG[0] = hace.SGDescriptor{Len: 64 | hace.SGLast, Addr: hace.AddrStaging}
	ctx.Method = hace.AlgorithmSHA256.HashCommand()

	m.SetActiveSession(b)
	ctx = mustContext(t, m)
	if ctx.Method != 0 {
		t.Errorf("Method = 0x%x after switch, want 0", ctx.Method)
	}
	if hw.SG[0].Addr != hace.AddrStaging {
		t.Error("context switch overwrote the scatter/gather descriptors")
	}
}

func TestMulti_CopySession(t *testing.T) {
	m, hw := newTestMulti(t, 3)
	a := mustAllocate(t, m)
	b := mustAllocate(t, m)
	c := mustAllocate(t, m)

	// a is resident: its state is only in hardware.
	m.SetActiveSession(a)
	ctx := mustContext(t, m)
	ctx.Method = hace.AlgorithmSHA256.HashCommand()
	ctx.Buffer[0] = 'A'
	ctx.BufferCount = 1
	ctx.DigestCount = [2]uint64{64, 0}

	before := m.Stats()
	if err := m.CopySession(b, a); err != nil {
		t.Fatalf("CopySession(b, a) error = %v", err)
	}
	if got := m.Stats(); got != before {
		t.Errorf("Stats() = %+v after CopySession(), want %+v", got, before)
	}
	if got := m.ActiveSession(); got != a {
		t.Errorf("ActiveSession() = %d, want %d", got, a)
	}

	// Diverge a from its copy.
	hw.Buffer[1] = 'a'
	hw.BufferCount = 2

	m.SetActiveSession(b)
	ctx = mustContext(t, m)
	if ctx.Buffer[0] != 'A' || ctx.BufferCount != 1 || ctx.DigestCount[0] != 64 {
		t.Errorf("copy sees %q/%d/%d, want 'A'/1/64", ctx.Buffer[0], ctx.BufferCount, ctx.DigestCount[0])
	}

	// b is now resident; copy a (saved in its slot) into c, then c over b.
	if err := m.CopySession(c, a); err != nil {
		t.Fatalf("CopySession(c, a) error = %v", err)
	}
	if err := m.CopySession(b, c); err != nil {
		t.Fatalf("CopySession(b, c) error = %v", err)
	}
	if hw.BufferCount != 2 || hw.Buffer[1] != 'a' {
		t.Errorf("resident copy sees %d buffered bytes, want 2", hw.BufferCount)
	}

	if err := m.CopySession(a, a); err != nil {
		t.Errorf("CopySession(a, a) error = %v", err)
	}
	m.ReleaseSession(c)
	if err := m.CopySession(c, a); !errors.Is(err, ErrSessionNotAllocated) {
		t.Errorf("CopySession() into a free slot error = %v, want ErrSessionNotAllocated", err)
	}
	if err := m.CopySession(a, 7); !errors.Is(err, ErrSessionOutOfBounds) {
		t.Errorf("CopySession() from out of bounds error = %v, want ErrSessionOutOfBounds", err)
	}
}

func TestMulti_ReleaseResidentForcesReload(t *testing.T) {
	m, hw := newTestMulti(t, 2)
	a := mustAllocate(t, m)

	m.SetActiveSession(a)
	ctx := mustContext(t, m)
	ctx.Digest[0] = 0x99
	ctx.BufferCount = 5

	if err := m.ReleaseSession(a); err != nil {
		t.Fatalf("ReleaseSession() error = %v", err)
	}
	if _, ok := m.LastLoaded(); ok {
		t.Error("LastLoaded() still set after releasing the resident session")
	}

	// The freed slot is reallocated; its first access must not see the
	// stale hardware state.
	again := mustAllocate(t, m)
	if again != a {
		t.Fatalf("AllocateSession() = %d, want %d", again, a)
	}
	m.SetActiveSession(again)
	ctx = mustContext(t, m)
	if ctx.Digest[0] != 0 || ctx.BufferCount != 0 {
		t.Errorf("reallocated session sees digest[0]=0x%02x bufcnt=%d, want zero", ctx.Digest[0], ctx.BufferCount)
	}
	if ctx != hw {
		t.Error("Context() did not return the hardware context")
	}
}

func TestMulti_ReleaseZeroesSlot(t *testing.T) {
	m, _ := newTestMulti(t, 2)
	a := mustAllocate(t, m)
	b := mustAllocate(t, m)

	m.SetActiveSession(a)
	ctx := mustContext(t, m)
	ctx.Key[0] = 0x42
	ctx.KeyLen = 1

	// Switch away so a's key is saved to its slot.
	m.SetActiveSession(b)
	mustContext(t, m)
	if m.slots[a].KeyLen != 1 {
		t.Fatal("session a was not saved on switch")
	}

	if err := m.ReleaseSession(a); err != nil {
		t.Fatalf("ReleaseSession() error = %v", err)
	}
	if !m.slots[a].IsZero() {
		t.Error("released slot was not zeroed")
	}
}

func TestSingle(t *testing.T) {
	hw := &hace.Context{}
	s, err := NewSingle(hw)
	if err != nil {
		t.Fatalf("NewSingle() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		ctx, err := s.Context()
		if err != nil {
			t.Fatalf("Context() error = %v", err)
		}
		if ctx != hw {
			t.Fatal("Context() did not return the wrapped context")
		}
	}
	if _, err := NewSingle(nil); !errors.Is(err, ErrNilContext) {
		t.Errorf("NewSingle(nil) error = %v, want ErrNilContext", err)
	}

	var _ ContextProvider = s
	var _ ContextProvider = (*Multi)(nil)
}
