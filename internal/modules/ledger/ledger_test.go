// README: Ledger tests: counting rules, running balance, withdraw serialization.
package ledger

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platera/internal/config"
	"platera/internal/money"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRates() config.RatesConfig {
	return config.RatesConfig{
		GovVAT:            d("0.05"),
		CourierFeeRate:    d("0.15"),
		RestaurantFeeRate: d("0.10"),
		RestaurantVATRate: d("0.05"),
	}
}

func TestCountedAndSigned(t *testing.T) {
	cases := []struct {
		entryType EntryType
		status    EntryStatus
		net       string
		want      string
	}{
		{TypeDeposit, StatusPaid, "100", "100"},
		{TypeDeposit, StatusSuccess, "100", "100"},
		{TypeDeposit, StatusPending, "100", "0"},
		{TypeDeposit, StatusFailed, "100", "0"},
		{TypeDeposit, StatusCancelled, "100", "0"},
		{TypeDeposit, StatusRefunded, "100", "0"},
		// in-flight withdrawals already reserve the money
		{TypeWithdraw, StatusProcessing, "40", "-40"},
		{TypeWithdraw, StatusSuccess, "40", "-40"},
		{TypeWithdraw, StatusFailed, "40", "0"},
		{TypeWithdraw, StatusPending, "40", "0"},
	}
	for _, tc := range cases {
		e := Entry{Type: tc.entryType, Status: tc.status, NetAmount: d(tc.net)}
		if got := e.Signed(); !got.Equal(d(tc.want)) {
			t.Errorf("Signed(%s/%s) = %s, want %s", tc.entryType, tc.status, got, tc.want)
		}
	}
}

func TestAnnotateRunningBalance(t *testing.T) {
	entries := []Entry{
		{Type: TypeDeposit, Status: StatusPaid, NetAmount: d("236.25")},
		{Type: TypeDeposit, Status: StatusPending, NetAmount: d("50")},
		{Type: TypeWithdraw, Status: StatusProcessing, NetAmount: d("100")},
		{Type: TypeDeposit, Status: StatusPaid, NetAmount: d("63.75")},
		{Type: TypeWithdraw, Status: StatusFailed, NetAmount: d("500")},
	}
	items := Annotate(entries)
	require.Len(t, items, len(entries))

	wantRunning := []string{"236.25", "236.25", "136.25", "200", "200"}
	for i, want := range wantRunning {
		assert.True(t, items[i].Running.Equal(d(want)),
			"running[%d] = %s, want %s", i, items[i].Running, want)
	}
	assert.True(t, Balance(entries).Equal(d("200")))
}

func TestRecordDepositValidation(t *testing.T) {
	svc := NewService(nil, testRates())

	// Validation happens before any store access.
	_, err := svc.RecordDeposit(context.Background(), Owner{Kind: money.OwnerRestaurant, ID: "r1"}, d("0"), "", false)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RecordDeposit(context.Background(), Owner{Kind: money.OwnerCourier, ID: "k1"}, d("-5"), "", false)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRequestWithdrawValidation(t *testing.T) {
	svc := NewService(nil, testRates())
	ctx := context.Background()
	owner := Owner{Kind: money.OwnerCourier, ID: "k1"}
	goodBank := BankRef{Name: "K One", Account: "79927398713", Code: "012"} // luhn-valid

	_, err := svc.RequestWithdraw(ctx, owner, d("0"), goodBank)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	for _, account := range []string{"", "notdigits", "79927398710"} {
		_, err := svc.RequestWithdraw(ctx, owner, d("10"), BankRef{Name: "K One", Account: account, Code: "012"})
		assert.ErrorIs(t, err, ErrInvalidBankAccount, "account %q", account)
	}
}

func newTestService(t *testing.T) (*Service, *Store) {
	t.Helper()
	store := setupTestStore(t)
	return NewService(store, testRates()), store
}

func TestDepositAndBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	owner := Owner{Kind: money.OwnerRestaurant, ID: "r_bal"}

	// Settled restaurant deposit: fee 10% of 250 = 25, net (250-25)*1.05 = 236.25.
	e, err := svc.RecordDeposit(ctx, owner, d("250"), "order 2603-000001", true)
	require.NoError(t, err)
	assert.True(t, e.Fee.Equal(d("25.00")), "fee = %s", e.Fee)
	assert.True(t, e.NetAmount.Equal(d("236.25")), "net = %s", e.NetAmount)
	assert.Equal(t, StatusPaid, e.Status)

	// Pending deposits do not count toward the balance.
	_, err = svc.RecordDeposit(ctx, owner, d("100"), "pending promo", false)
	require.NoError(t, err)

	balance, err := svc.CurrentBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("236.25")), "balance = %s", balance)
}

func TestWithdrawLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	owner := Owner{Kind: money.OwnerCourier, ID: "k_wd"}
	bank := BankRef{Name: "K WD", Account: "79927398713", Code: "012"}

	_, err := svc.RecordDeposit(ctx, owner, d("200"), "order", true)
	require.NoError(t, err)
	// Courier fee 15%: net 170.
	balance, err := svc.CurrentBalance(ctx, owner)
	require.NoError(t, err)
	require.True(t, balance.Equal(d("170.00")), "balance = %s", balance)

	e, err := svc.RequestWithdraw(ctx, owner, d("100"), bank)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, e.Status)
	assert.True(t, e.Fee.IsZero())
	assert.True(t, e.NetAmount.Equal(d("100.00")))

	// Processing withdrawals already reserve the money.
	balance, err = svc.CurrentBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("70.00")), "balance = %s", balance)

	// Overdraw on the remaining 70 is rejected and leaves no entry behind.
	_, err = svc.RequestWithdraw(ctx, owner, d("71"), bank)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	items, err := svc.History(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, svc.FinalizeWithdraw(ctx, string(e.ID), true, "payout_1", []byte(`{}`)))
	balance, err = svc.CurrentBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("70.00")), "balance after success = %s", balance)

	// A settled entry cannot be finalized twice.
	err = svc.FinalizeWithdraw(ctx, string(e.ID), false, "payout_1", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedWithdrawReleasesFunds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	owner := Owner{Kind: money.OwnerCourier, ID: "k_fail"}
	bank := BankRef{Name: "K Fail", Account: "79927398713", Code: "012"}

	_, err := svc.RecordDeposit(ctx, owner, d("100"), "order", true)
	require.NoError(t, err)

	e, err := svc.RequestWithdraw(ctx, owner, d("85"), bank)
	require.NoError(t, err)
	require.NoError(t, svc.FinalizeWithdraw(ctx, string(e.ID), false, "", nil))

	balance, err := svc.CurrentBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("85.00")), "balance = %s", balance)
}

func TestConcurrentWithdrawCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	owner := Owner{Kind: money.OwnerCourier, ID: "k_race"}
	bank := BankRef{Name: "K Race", Account: "79927398713", Code: "012"}

	_, err := svc.RecordDeposit(ctx, owner, d("100"), "order", true)
	require.NoError(t, err)
	// Courier net: 85. Two 60s cannot both fit.

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RequestWithdraw(ctx, owner, d("60"), bank)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one withdraw may pass")

	balance, err := svc.CurrentBalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("25.00")), "balance = %s", balance)
}

func TestHistoryOrdering(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := Owner{Kind: money.OwnerRestaurant, ID: "r_hist"}

	for i, gross := range []string{"100", "200", "300"} {
		e := Entry{
			Owner:     owner,
			Type:      TypeDeposit,
			Status:    StatusPaid,
			Amount:    d(gross),
			Fee:       decimal.Zero,
			NetAmount: d(gross),
			CreatedAt: time.Date(2026, time.March, 1, 10, i, 0, 0, time.UTC),
			UpdatedAt: time.Date(2026, time.March, 1, 10, i, 0, 0, time.UTC),
		}
		_, err := store.Append(ctx, e)
		require.NoError(t, err)
	}

	items, err := svc.History(ctx, owner)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.True(t, items[0].Running.Equal(d("100")))
	assert.True(t, items[1].Running.Equal(d("300")))
	assert.True(t, items[2].Running.Equal(d("600")))
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("PLATERA_TEST_DSN")
	if dsn == "" {
		t.Skip("PLATERA_TEST_DSN not set; skipping DB-backed ledger tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE ledger_entries, balance_owner_locks"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return NewStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, `
		DROP TABLE IF EXISTS order_state_events, order_items, orders,
			ledger_entries, balance_owner_locks, foods, restaurants CASCADE`,
	); err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
