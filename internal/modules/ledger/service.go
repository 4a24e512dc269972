// README: Ledger service: deposits, withdraw requests, balances, history.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/theplant/luhn"

	"platera/internal/config"
	"platera/internal/money"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidBankAccount  = errors.New("bank account failed checksum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("ledger entry not found")
)

type Service struct {
	store *Store
	rates config.RatesConfig
}

func NewService(store *Store, rates config.RatesConfig) *Service {
	return &Service{store: store, rates: rates}
}

// RecordDeposit computes the fee split once and appends the entry. settled
// marks deposits that are the direct consequence of a verified handoff;
// they enter as paid instead of pending.
func (s *Service) RecordDeposit(ctx context.Context, owner Owner, gross decimal.Decimal, note string, settled bool) (Entry, error) {
	if gross.Sign() <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	feeRate := s.rates.CourierFeeRate
	if owner.Kind == money.OwnerRestaurant {
		feeRate = s.rates.RestaurantFeeRate
	}
	fee, net := money.DepositSplit(gross, feeRate, s.rates.RestaurantVATRate, owner.Kind)

	status := StatusPending
	if settled {
		status = StatusPaid
	}
	now := time.Now()
	e := Entry{
		Owner:     owner,
		Type:      TypeDeposit,
		Status:    status,
		Amount:    money.Round2(gross),
		Fee:       fee,
		NetAmount: net,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.store.Append(ctx, e)
}

// RequestWithdraw validates the bank reference, then creates a processing
// entry inside a transaction that holds the per-owner lock across the
// balance check and the insert. The actual payout is the payment bridge's
// job; FinalizeWithdraw settles the status from the webhook.
func (s *Service) RequestWithdraw(ctx context.Context, owner Owner, amount decimal.Decimal, bank BankRef) (Entry, error) {
	if amount.Sign() <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	acct, err := strconv.Atoi(bank.Account)
	if err != nil || !luhn.Valid(acct) {
		return Entry{}, ErrInvalidBankAccount
	}
	now := time.Now()
	e := Entry{
		Owner:  owner,
		Type:   TypeWithdraw,
		Status: StatusProcessing,
		// Withdrawals pass through unchanged; the fee was taken at deposit.
		Amount:    money.Round2(amount),
		Fee:       decimal.Zero,
		NetAmount: money.Round2(amount),
		Bank:      bank,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.store.AppendWithdraw(ctx, e)
}

// FinalizeWithdraw settles a processing withdrawal from the payout
// webhook. Only the status and the gateway blob change.
func (s *Service) FinalizeWithdraw(ctx context.Context, entryID string, success bool, gatewayRef string, payload []byte) error {
	status := StatusFailed
	if success {
		status = StatusSuccess
	}
	return s.store.Finalize(ctx, entryID, status, gatewayRef, payload)
}

func (s *Service) CurrentBalance(ctx context.Context, owner Owner) (decimal.Decimal, error) {
	return s.store.Balance(ctx, owner)
}

func (s *Service) History(ctx context.Context, owner Owner) ([]HistoryItem, error) {
	entries, err := s.store.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	return Annotate(entries), nil
}
