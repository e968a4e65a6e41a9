package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	dbpkg "github.com/tapterm/paybroker/internal/db"
	"github.com/tapterm/paybroker/internal/models"
	"gorm.io/gorm"
)

// stepClock returns strictly increasing timestamps one second apart.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func openSessionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:sessions_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := openSessionsTestDB(t)
	return NewService(conn, WithClock(newStepClock().Now)), conn
}

func mustCreate(t *testing.T, svc *Service, terminalID string, amount int64) *models.PaymentSession {
	t.Helper()
	row, err := svc.Create(context.Background(), RoleDevice, CreateParams{TerminalID: terminalID, Amount: amount, Currency: "USD"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return row
}

func mustStatus(t *testing.T, svc *Service, id string, want models.SessionStatus) {
	t.Helper()
	row, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	if row.Status != want {
		t.Fatalf("session %s status = %s, want %s", id, row.Status, want)
	}
}

func countPaid(t *testing.T, conn *gorm.DB, terminalID string) int64 {
	t.Helper()
	var n int64
	if errCount := conn.Model(&models.PaymentSession{}).
		Where("terminal_id = ? AND status = ?", terminalID, models.SessionPaid).
		Count(&n).Error; errCount != nil {
		t.Fatalf("count paid: %v", errCount)
	}
	return n
}

func TestCreateInsertsPendingSession(t *testing.T) {
	svc, _ := newTestService(t)

	row := mustCreate(t, svc, "STORE01-0001", 500)
	if row.ID == "" {
		t.Fatalf("expected generated id")
	}
	if row.Status != models.SessionPending || row.Amount != 500 || row.Currency != "USD" {
		t.Fatalf("unexpected session %+v", row)
	}
	if row.CreatedAt.IsZero() {
		t.Fatalf("expected creation timestamp")
	}

	second := mustCreate(t, svc, "STORE01-0001", 300)
	mustStatus(t, svc, row.ID, models.SessionPending)
	mustStatus(t, svc, second.ID, models.SessionPending)
}

func TestCreateValidatesInputAndRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, RoleDevice, CreateParams{TerminalID: "  ", Currency: "USD"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty terminal, got %v", err)
	}
	if _, err := svc.Create(ctx, RoleDevice, CreateParams{TerminalID: "T1"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty currency, got %v", err)
	}
	if _, err := svc.Create(ctx, RoleSandbox, CreateParams{TerminalID: "T1", Currency: "USD"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for sandbox create, got %v", err)
	}
}

func TestApproveNewestThenNewSessionIsApprovable(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	first := mustCreate(t, svc, "T1", 500)
	approved, err := svc.ApproveNewestForTerminal(ctx, RoleSandbox, "T1")
	if err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if approved.ID != first.ID || approved.Status != models.SessionPaid {
		t.Fatalf("unexpected approval result %+v", approved)
	}
	if approved.ResolvedBy != string(RoleSandbox) {
		t.Fatalf("expected resolvedBy sandbox, got %q", approved.ResolvedBy)
	}

	second := mustCreate(t, svc, "T1", 300)
	if _, err := svc.ApproveNewestForTerminal(ctx, RoleSandbox, "T1"); err != nil {
		t.Fatalf("approve second: %v", err)
	}
	mustStatus(t, svc, first.ID, models.SessionPaid)
	mustStatus(t, svc, second.ID, models.SessionPaid)
	if n := countPaid(t, conn, "T1"); n != 2 {
		t.Fatalf("expected two paid sessions over time, got %d", n)
	}
}

func TestApproveOlderPendingConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	older := mustCreate(t, svc, "T1", 100)
	newer := mustCreate(t, svc, "T1", 200)

	if _, err := svc.Approve(ctx, RoleOperator, older.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict approving older session, got %v", err)
	}
	mustStatus(t, svc, older.ID, models.SessionPending)
	mustStatus(t, svc, newer.ID, models.SessionPending)

	if _, err := svc.Approve(ctx, RoleOperator, newer.ID); err != nil {
		t.Fatalf("approve newer: %v", err)
	}
	mustStatus(t, svc, newer.ID, models.SessionPaid)
	mustStatus(t, svc, older.ID, models.SessionCanceled)
}

func TestApproveCancelsEveryPendingSibling(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "T1", 1)
	b := mustCreate(t, svc, "T1", 2)
	other := mustCreate(t, svc, "T2", 3)
	c := mustCreate(t, svc, "T1", 4)

	if _, err := svc.Approve(ctx, RoleDevice, c.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	mustStatus(t, svc, c.ID, models.SessionPaid)
	mustStatus(t, svc, a.ID, models.SessionCanceled)
	mustStatus(t, svc, b.ID, models.SessionCanceled)
	mustStatus(t, svc, other.ID, models.SessionPending)

	row, err := svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.ResolvedBy != string(RoleDevice) {
		t.Fatalf("expected sibling resolvedBy device, got %q", row.ResolvedBy)
	}
}

func TestApproveNonPendingConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	row := mustCreate(t, svc, "T1", 1)
	if _, err := svc.Approve(ctx, RoleSandbox, row.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Approve(ctx, RoleSandbox, row.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict re-approving paid session, got %v", err)
	}

	canceled := mustCreate(t, svc, "T3", 1)
	if _, err := svc.Cancel(ctx, RoleOperator, canceled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Approve(ctx, RoleSandbox, canceled.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict approving canceled session, got %v", err)
	}
}

func TestApproveMissingSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, RoleSandbox, "does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ApproveNewestForTerminal(ctx, RoleSandbox, "EMPTY-0001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for terminal without pending, got %v", err)
	}
	if _, err := svc.Approve(ctx, RoleSandbox, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Approve(ctx, Role("intruder"), "x"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown role, got %v", err)
	}
}

func TestScenarioDoubleSubmitThenCleanup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	s1 := mustCreate(t, svc, "T1", 500)
	s2 := mustCreate(t, svc, "T1", 500)

	if _, err := svc.Approve(ctx, RoleSandbox, s1.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for S1, got %v", err)
	}
	if _, err := svc.Approve(ctx, RoleSandbox, s2.ID); err != nil {
		t.Fatalf("approve S2: %v", err)
	}
	mustStatus(t, svc, s2.ID, models.SessionPaid)
	// Approval cancels S1 as a sibling.
	mustStatus(t, svc, s1.ID, models.SessionCanceled)

	n, err := svc.CancelOlderPending(ctx, RoleOperator, "T1")
	if err != nil {
		t.Fatalf("cancel older: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing left to cancel, got %d", n)
	}
}

func TestCancelOlderPendingKeepsNewest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	s1 := mustCreate(t, svc, "T1", 1)
	s2 := mustCreate(t, svc, "T1", 2)
	s3 := mustCreate(t, svc, "T1", 3)
	other := mustCreate(t, svc, "T2", 4)

	n, err := svc.CancelOlderPending(ctx, RoleOperator, "T1")
	if err != nil {
		t.Fatalf("cancel older: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 canceled, got %d", n)
	}
	mustStatus(t, svc, s1.ID, models.SessionCanceled)
	mustStatus(t, svc, s2.ID, models.SessionCanceled)
	mustStatus(t, svc, s3.ID, models.SessionPending)
	mustStatus(t, svc, other.ID, models.SessionPending)

	if _, err := svc.Approve(ctx, RoleSandbox, s3.ID); err != nil {
		t.Fatalf("approve survivor: %v", err)
	}
}

func TestCancelOlderPendingWithoutPendingIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.CancelOlderPending(ctx, RoleOperator, "T9")
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}

	only := mustCreate(t, svc, "T9", 1)
	n, err = svc.CancelOlderPending(ctx, RoleOperator, "T9")
	if err != nil || n != 0 {
		t.Fatalf("expected no-op with single pending, got n=%d err=%v", n, err)
	}
	mustStatus(t, svc, only.ID, models.SessionPending)

	if _, err := svc.CancelOlderPending(ctx, RoleDevice, "T9"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for device role, got %v", err)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	row := mustCreate(t, svc, "T1", 1)
	first, err := svc.Cancel(ctx, RoleOperator, row.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if first.Status != models.SessionCanceled || first.ResolvedBy != string(RoleOperator) {
		t.Fatalf("unexpected cancel result %+v", first)
	}
	again, err := svc.Cancel(ctx, RoleOperator, row.ID)
	if err != nil {
		t.Fatalf("cancel again: %v", err)
	}
	if again.Status != models.SessionCanceled {
		t.Fatalf("expected canceled, got %s", again.Status)
	}

	missing, err := svc.Cancel(ctx, RoleOperator, "gone")
	if err != nil {
		t.Fatalf("cancel missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil session for missing cancel, got %+v", missing)
	}

	if _, err := svc.Cancel(ctx, RoleSandbox, row.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for sandbox cancel, got %v", err)
	}
}

func TestCancelPaidSessionLeavesItPaid(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	row := mustCreate(t, svc, "T1", 1)
	if _, err := svc.Approve(ctx, RoleSandbox, row.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	out, err := svc.Cancel(ctx, RoleOperator, row.ID)
	if err != nil {
		t.Fatalf("cancel paid: %v", err)
	}
	if out.Status != models.SessionPaid {
		t.Fatalf("paid session must stay paid, got %s", out.Status)
	}
	if n := countPaid(t, conn, "T1"); n != 1 {
		t.Fatalf("expected one paid session, got %d", n)
	}
}

func TestListPendingNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, mustCreate(t, svc, "T1", int64(i)).ID)
	}
	if _, err := svc.Cancel(ctx, RoleOperator, ids[1]); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rows, err := svc.ListPending(ctx, "T1", 3)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{ids[4], ids[3], ids[2]}
	for i := range want {
		if rows[i].ID != want[i] {
			t.Fatalf("row %d = %s, want %s", i, rows[i].ID, want[i])
		}
	}

	newest, err := svc.NewestPending(ctx, "T1")
	if err != nil {
		t.Fatalf("newest pending: %v", err)
	}
	if newest.ID != ids[4] {
		t.Fatalf("newest = %s, want %s", newest.ID, ids[4])
	}

	recent, err := svc.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 5 || recent[0].ID != ids[4] {
		t.Fatalf("unexpected recent listing: %d rows", len(recent))
	}
}

func TestEqualTimestampsOrderByID(t *testing.T) {
	conn := openSessionsTestDB(t)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var seq int
	svc := NewService(conn,
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("00000000-0000-7000-8000-%012d", seq), nil
		}),
	)
	ctx := context.Background()

	first := mustCreate(t, svc, "T1", 100)
	second := mustCreate(t, svc, "T1", 200)
	third := mustCreate(t, svc, "T1", 300)
	if !first.CreatedAt.Equal(third.CreatedAt) {
		t.Fatalf("expected identical timestamps, got %s and %s", first.CreatedAt, third.CreatedAt)
	}

	rows, err := svc.ListPending(ctx, "T1", 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	want := []string{third.ID, second.ID, first.ID}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i := range want {
		if rows[i].ID != want[i] {
			t.Fatalf("row %d = %s, want %s", i, rows[i].ID, want[i])
		}
	}

	if _, err = svc.Approve(ctx, RoleOperator, second.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict approving tied older session, got %v", err)
	}
	if _, err = svc.Approve(ctx, RoleOperator, third.ID); err != nil {
		t.Fatalf("approve highest id: %v", err)
	}
	mustStatus(t, svc, third.ID, models.SessionPaid)
	mustStatus(t, svc, second.ID, models.SessionCanceled)
	mustStatus(t, svc, first.ID, models.SessionCanceled)
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	if got := clampLimit(0, 20); got != 20 {
		t.Fatalf("expected fallback, got %d", got)
	}
	if got := clampLimit(500, 20); got != MaxListLimit {
		t.Fatalf("expected max, got %d", got)
	}
	if got := clampLimit(7, 20); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestConcurrentApprovalsYieldSinglePaid(t *testing.T) {
	conn, errOpen := dbpkg.Open(fmt.Sprintf("%s/sessions.db", t.TempDir()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	t.Cleanup(func() { _ = dbpkg.Close(conn) })
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	svc := NewService(conn, WithClock(newStepClock().Now))
	ctx := context.Background()

	var created []*models.PaymentSession
	for i := 0; i < 6; i++ {
		created = append(created, mustCreate(t, svc, "T1", int64(i)))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, row := range created {
		for _, role := range []Role{RoleSandbox, RoleOperator} {
			wg.Add(1)
			go func(id string, role Role) {
				defer wg.Done()
				_, err := svc.Approve(ctx, role, id)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected approve error: %v", err)
				}
			}(row.ID, role)
		}
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful approval, got %d (conflicts %d)", successes, conflicts)
	}
	if n := countPaid(t, conn, "T1"); n != 1 {
		t.Fatalf("expected one paid session, got %d", n)
	}
	mustStatus(t, svc, created[len(created)-1].ID, models.SessionPaid)
	pending, err := svc.ListPending(ctx, "T1", 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending sessions after approval, got %d", len(pending))
	}
}
