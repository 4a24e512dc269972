// README: Append-only ledger entries for restaurant and courier balances.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"platera/internal/money"
	"platera/internal/types"
)

type EntryType string

const (
	TypeDeposit  EntryType = "deposit"
	TypeWithdraw EntryType = "withdraw"
)

type EntryStatus string

const (
	StatusPending    EntryStatus = "pending"
	StatusProcessing EntryStatus = "processing"
	StatusPaid       EntryStatus = "paid"
	StatusSuccess    EntryStatus = "success"
	StatusFailed     EntryStatus = "failed"
	StatusCancelled  EntryStatus = "cancelled"
	StatusRefunded   EntryStatus = "refunded"
)

// Owner is exactly one of restaurant or courier, discriminated by Kind.
type Owner struct {
	Kind money.OwnerKind
	ID   types.ID
}

// Entry is immutable once created except for Status and GatewayPayload;
// entries are never deleted.
type Entry struct {
	ID     types.ID
	Owner  Owner
	Type   EntryType
	Status EntryStatus
	// Amount is the gross original; Fee the platform cut; NetAmount the
	// usable balance-affecting amount. All fixed at creation.
	Amount         decimal.Decimal
	Fee            decimal.Decimal
	NetAmount      decimal.Decimal
	Note           string
	Bank           BankRef
	GatewayRef     string
	GatewayPayload []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type BankRef struct {
	Name    string
	Account string
	Code    string
}

// depositCounted is the approved-like set for deposits; withdrawCounted
// additionally reserves in-flight withdrawals so two requests cannot
// jointly overdraw.
func depositCounted(s EntryStatus) bool {
	return s == StatusPaid || s == StatusSuccess
}

func withdrawCounted(s EntryStatus) bool {
	return s == StatusProcessing || s == StatusSuccess
}

// Counted reports whether the entry affects the available balance.
func (e Entry) Counted() bool {
	if e.Type == TypeDeposit {
		return depositCounted(e.Status)
	}
	return withdrawCounted(e.Status)
}

// Signed returns the balance delta the entry contributes: +net for counted
// deposits, -net for counted withdrawals, zero otherwise.
func (e Entry) Signed() decimal.Decimal {
	if !e.Counted() {
		return decimal.Zero
	}
	if e.Type == TypeDeposit {
		return e.NetAmount
	}
	return e.NetAmount.Neg()
}

// HistoryItem annotates an entry with the running balance after it.
type HistoryItem struct {
	Entry
	Running decimal.Decimal
}

// Annotate computes the windowed cumulative sum over entries ordered by
// creation time ascending.
func Annotate(entries []Entry) []HistoryItem {
	out := make([]HistoryItem, len(entries))
	running := decimal.Zero
	for i, e := range entries {
		running = running.Add(e.Signed())
		out[i] = HistoryItem{Entry: e, Running: running}
	}
	return out
}

// Balance sums the counted entries. The store computes the same number in
// SQL for the withdraw check; this helper backs history and tests.
func Balance(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Signed())
	}
	return sum
}
