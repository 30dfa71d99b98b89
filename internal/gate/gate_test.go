package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/belkagoyda/orex-workspace/internal/ipfilter"
)

const chromeUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	gate      *Gate
	allowPath string
	denyPath  string
	auditPath string
}

func newTestGate(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		allowPath: filepath.Join(dir, "allow.txt"),
		denyPath:  filepath.Join(dir, "deny.txt"),
		auditPath: filepath.Join(dir, "audit.log"),
	}
	store := NewFileStore(env.allowPath, env.denyPath)
	audit := NewAuditLog(env.auditPath, testLogger())
	env.gate = New(store, audit, nil, cfg, testLogger())
	return env
}

func TestFingerprintBinding(t *testing.T) {
	env := newTestGate(t, Config{ExactMatch: true})
	ctx := context.Background()

	if err := env.gate.RecordSuccess(ctx, "10.0.0.5", "abc123def456"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	if d := env.gate.AdmitLogin(ctx, "10.0.0.5", "xyz999aaa000", chromeUA); d != DenyFingerprintMismatch {
		t.Errorf("foreign fingerprint: got %v, want %v", d, DenyFingerprintMismatch)
	}
	if d := env.gate.AdmitLogin(ctx, "10.0.0.5", "abc123def456", chromeUA); d != Allow {
		t.Errorf("bound fingerprint: got %v, want allow", d)
	}

	// mismatch is rejected before credentials, so the counter is untouched
	if env.gate.Attempts().Tracked("10.0.0.5") {
		t.Error("binding rejection must not touch the attempt counter")
	}
}

func TestFingerprintBindingWithSeparator(t *testing.T) {
	for _, exact := range []bool{true, false} {
		env := newTestGate(t, Config{ExactMatch: exact})
		ctx := context.Background()
		fp := "abc|def123\nx"

		if err := env.gate.RecordSuccess(ctx, "10.0.0.5", fp); err != nil {
			t.Fatalf("RecordSuccess: %v", err)
		}
		if d := env.gate.Verify(ctx, "10.0.0.5", fp, "10.0.0.5", fp); d != Allow {
			t.Errorf("exact=%v Verify: got %v, want allow", exact, d)
		}
		if d := env.gate.AdmitLogin(ctx, "10.0.0.5", fp, chromeUA); d != Allow {
			t.Errorf("exact=%v AdmitLogin: got %v, want allow", exact, d)
		}
		if d := env.gate.AdmitLogin(ctx, "10.0.0.5", "abc|def999", chromeUA); d != DenyFingerprintMismatch {
			t.Errorf("exact=%v other fingerprint: got %v, want %v", exact, d, DenyFingerprintMismatch)
		}
	}
}

func TestRecordSuccessBindsOnce(t *testing.T) {
	env := newTestGate(t, Config{ExactMatch: true})
	ctx := context.Background()

	env.gate.RecordSuccess(ctx, "10.0.0.5", "abc123")
	env.gate.RecordSuccess(ctx, "10.0.0.5", "abc123")

	entries, err := env.gate.Store().AllowEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}

func TestThreeFailuresDenyIP(t *testing.T) {
	env := newTestGate(t, Config{})
	ctx := context.Background()
	ip := "203.0.113.9"

	for i := 0; i < 2; i++ {
		denied, err := env.gate.RecordFailure(ctx, ip)
		if err != nil || denied {
			t.Fatalf("failure %d: denied=%v err=%v", i+1, denied, err)
		}
	}
	denied, err := env.gate.RecordFailure(ctx, ip)
	if err != nil || !denied {
		t.Fatalf("third failure: denied=%v err=%v", denied, err)
	}

	data, err := os.ReadFile(env.denyPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "203.0.113.9|Too many failed attempts|"); n != 1 {
		t.Errorf("deny-list has %d matching lines, want 1:\n%s", n, data)
	}

	// every subsequent request is rejected before anything else runs
	if d := env.gate.Admit(ctx, ip, chromeUA); d != DenyBanned {
		t.Errorf("Admit() = %v, want %v", d, DenyBanned)
	}
	if d := env.gate.AdmitLogin(ctx, ip, "abc", chromeUA); d != DenyBanned {
		t.Errorf("AdmitLogin() = %v, want %v", d, DenyBanned)
	}
}

func TestFourthFailureIsIdempotent(t *testing.T) {
	env := newTestGate(t, Config{})
	ctx := context.Background()
	ip := "203.0.113.9"

	for i := 0; i < 4; i++ {
		if _, err := env.gate.RecordFailure(ctx, ip); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := env.gate.Store().DenyEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("len(deny entries) = %d, want 1", len(entries))
	}
	if env.gate.Attempts().Tracked(ip) {
		t.Error("counter should be absent after denial")
	}
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	env := newTestGate(t, Config{})
	ctx := context.Background()

	env.gate.RecordFailure(ctx, "10.0.0.7")
	env.gate.RecordFailure(ctx, "10.0.0.7")
	if err := env.gate.RecordSuccess(ctx, "10.0.0.7", "fp"); err != nil {
		t.Fatal(err)
	}
	if env.gate.Attempts().Tracked("10.0.0.7") {
		t.Error("success should clear the counter")
	}

	// two more failures must not trip the threshold
	env.gate.RecordFailure(ctx, "10.0.0.7")
	denied, _ := env.gate.RecordFailure(ctx, "10.0.0.7")
	if denied {
		t.Error("counter was not reset by success")
	}
}

func TestCheckBrowserAllowed(t *testing.T) {
	env := newTestGate(t, Config{})

	tests := []struct {
		ua   string
		want bool
	}{
		{chromeUA, true},
		{"Mozilla/5.0 (Windows NT 10.0; rv:125.0) Gecko/20100101 Firefox/125.0", true},
		{"Mozilla/5.0 ... Edg/124.0", true},
		{"curl/8.5.0", false},
		{"", false},
		{"mozilla firefox", false},
	}
	for _, tt := range tests {
		if got := env.gate.CheckBrowserAllowed(tt.ua); got != tt.want {
			t.Errorf("CheckBrowserAllowed(%q) = %v, want %v", tt.ua, got, tt.want)
		}
	}

	if d := env.gate.Admit(context.Background(), "10.0.0.1", "curl/8.5.0"); d != DenyBrowser {
		t.Errorf("Admit() = %v, want %v", d, DenyBrowser)
	}
}

func TestCheckBoundMatchModes(t *testing.T) {
	ctx := context.Background()
	entry := AllowEntry{IP: "10.0.0.5", Fingerprint: "abc123def", Timestamp: time.Now()}

	exact := newTestGate(t, Config{ExactMatch: true})
	exact.gate.Store().AppendAllow(ctx, entry)

	loose := newTestGate(t, Config{ExactMatch: false})
	loose.gate.Store().AppendAllow(ctx, entry)

	tests := []struct {
		name      string
		env       *testEnv
		ip, fp    string
		wantBound bool
	}{
		{"exact same", exact, "10.0.0.5", "abc123def", true},
		{"exact prefix fingerprint", exact, "10.0.0.5", "abc123", false},
		{"exact prefix ip", exact, "10.0.0.", "abc123def", false},
		{"containment same", loose, "10.0.0.5", "abc123def", true},
		{"containment prefix fingerprint", loose, "10.0.0.5", "abc123", true},
		{"containment other fingerprint", loose, "10.0.0.5", "xyz", false},
		{"empty fingerprint", loose, "10.0.0.5", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.env.gate.CheckBound(ctx, tt.ip, tt.fp)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.wantBound {
				t.Errorf("CheckBound(%q, %q) = %v, want %v", tt.ip, tt.fp, got, tt.wantBound)
			}
		})
	}
}

func TestAdmitLoginRequiresFingerprint(t *testing.T) {
	env := newTestGate(t, Config{})
	if d := env.gate.AdmitLogin(context.Background(), "10.0.0.1", "", chromeUA); d != DenyFingerprintMissing {
		t.Errorf("AdmitLogin() = %v, want %v", d, DenyFingerprintMissing)
	}
}

func TestAdmitNetworkFilter(t *testing.T) {
	dir := t.TempDir()
	filter := ipfilter.New([]string{"192.168.0.0/16"}, false, testLogger())
	g := New(NewFileStore(filepath.Join(dir, "a"), filepath.Join(dir, "d")), nil, filter, Config{}, testLogger())

	if d := g.Admit(context.Background(), "192.168.4.4", chromeUA); d != Allow {
		t.Errorf("inside network: %v", d)
	}
	if d := g.Admit(context.Background(), "10.0.0.1", chromeUA); d != DenyIPNotAllowed {
		t.Errorf("outside network: %v, want %v", d, DenyIPNotAllowed)
	}
}

func TestVerify(t *testing.T) {
	env := newTestGate(t, Config{ExactMatch: true})
	ctx := context.Background()
	env.gate.RecordSuccess(ctx, "10.0.0.5", "abc123")

	tests := []struct {
		name   string
		ip, fp string
		want   Decision
	}{
		{"same ip and fingerprint", "10.0.0.5", "abc123", Allow},
		{"other fingerprint", "10.0.0.5", "zzz", DenyFingerprintMismatch},
		{"other ip", "10.0.0.6", "abc123", DenyFingerprintMismatch},
		{"no fingerprint", "10.0.0.5", "", DenyFingerprintMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.gate.Verify(ctx, "10.0.0.5", "abc123", tt.ip, tt.fp); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBan(t *testing.T) {
	env := newTestGate(t, Config{})
	ctx := context.Background()

	added, err := env.gate.Ban(ctx, "192.0.2.50", "manual")
	if err != nil || !added {
		t.Fatalf("Ban() = %v, %v", added, err)
	}
	added, err = env.gate.Ban(ctx, "192.0.2.50", "manual")
	if err != nil || added {
		t.Errorf("second Ban() = %v, %v; want false, nil", added, err)
	}
}

type failingStore struct {
	Store
}

func (failingStore) DenyEntries(ctx context.Context) ([]DenyEntry, error) {
	return nil, errors.New("disk gone")
}

func TestAdmitFailsClosed(t *testing.T) {
	g := New(failingStore{}, nil, nil, Config{}, testLogger())
	if d := g.Admit(context.Background(), "10.0.0.1", chromeUA); d != DenyUnavailable {
		t.Errorf("Admit() = %v, want %v", d, DenyUnavailable)
	}
}

func TestDecisionOutcome(t *testing.T) {
	tests := []struct {
		d    Decision
		want Outcome
	}{
		{Allow, OutcomeSuccess},
		{DenyBanned, OutcomeBanned},
		{DenyBrowser, OutcomeBrowserDenied},
		{DenyFingerprintMismatch, OutcomeFingerprintMismatch},
		{DenyTooManyAttempts, OutcomeLocked},
		{DenyUnavailable, OutcomeError},
	}
	for _, tt := range tests {
		if got := tt.d.Outcome(); got != tt.want {
			t.Errorf("%d.Outcome() = %v, want %v", tt.d, got, tt.want)
		}
	}
	if DenyBanned.String() != "banned" {
		t.Errorf("String() = %q", DenyBanned.String())
	}
}
