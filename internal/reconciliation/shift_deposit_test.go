package reconciliation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/reconciliation"
	"github.com/odyssey-erp/ledger-core/internal/shifts"
	"github.com/odyssey-erp/ledger-core/internal/shifts/shiftstest"
)

func TestShiftSalesThenCashDepositReachesBank(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	revenue := e.ledger.Seed("4100", accounting.AccountTypeIncome, "IDR")
	shiftSvc := shifts.NewService(shiftstest.NewStore(e.ledger), accounting.NewService(e.ledger, nil), nil)
	shiftSvc.WithNow(func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) })

	shift, err := shiftSvc.OpenShift(ctx, e.cashier, shifts.OpenInput{OutletID: 1, CashierID: e.cashier.ID})
	require.NoError(t, err)

	sell := func(ref string, method shifts.Method, amount string) {
		_, err := shiftSvc.RecordSale(ctx, e.cashier, shifts.SaleInput{
			ShiftID:     shift.ID,
			Date:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			Description: "POS " + ref,
			Reference:   ref,
			SourceID:    uuid.NewSHA1(uuid.Nil, []byte("POS_SALE:"+ref)),
			Payments:    []shifts.PaymentInput{{Method: method, Amount: amt(amount)}},
			Lines: []accounting.PostingLineInput{
				accounting.Debit(e.undeposit.ID, amt(amount), ""),
				accounting.Credit(revenue.ID, amt(amount), ""),
			},
		})
		require.NoError(t, err)
	}
	sell("S-1", shifts.MethodCash, "600")
	sell("S-2", shifts.MethodTransfer, "1400")

	closed, err := shiftSvc.CloseShift(ctx, e.cashier, shift.ID, shifts.Channels{Cash: amt("600"), Transfer: amt("1400")}, "")
	require.NoError(t, err)
	require.Equal(t, "600", closed.Expected.Cash.String())
	require.Equal(t, "1400", closed.Expected.Transfer.String())
	require.True(t, closed.Variance.IsZero())
	require.Equal(t, "2000", e.ledger.Balance(e.undeposit.ID).String())
	require.True(t, e.ledger.Balance(e.bank.ID).IsZero())

	d, err := e.svc.Record(ctx, e.cashier, reconciliation.RecordInput{
		Kind:    reconciliation.KindShiftCash,
		ShiftID: &shift.ID,
		Amount:  closed.Declared.Cash,
	})
	require.NoError(t, err)
	require.Equal(t, "2000", e.ledger.Balance(e.undeposit.ID).String())

	_, err = e.svc.Confirm(ctx, e.supervisor, d.ID, "bank.bca")
	require.NoError(t, err)
	require.Equal(t, "1400", e.ledger.Balance(e.undeposit.ID).String())
	require.Equal(t, "600", e.ledger.Balance(e.bank.ID).String())
	require.Equal(t, "2000", e.ledger.Balance(revenue.ID).String())
	require.Equal(t, 3, e.ledger.TransactionCount())
}
