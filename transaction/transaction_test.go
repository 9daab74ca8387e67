package transaction

import (
	"testing"

	"github.com/relstore/reldb-core/common"
	"github.com/stretchr/testify/assert"
)

func TestNewTransactionStartsGrowing(t *testing.T) {
	txn := New(1, ReadCommitted)
	assert.Equal(t, Growing, txn.State())
	assert.Equal(t, common.TransactionID(1), txn.ID())
	assert.Equal(t, ReadCommitted, txn.IsolationLevel())
}

func TestTransactionPageSetLIFOOrder(t *testing.T) {
	txn := New(1, ReadCommitted)
	txn.AddToPageSet(1)
	txn.AddToPageSet(2)
	txn.AddToPageSet(3)

	id, ok := txn.PopPageSet()
	assert.True(t, ok)
	assert.Equal(t, common.PageID(3), id)

	txn.ClearPageSet()
	_, ok = txn.PopPageSet()
	assert.False(t, ok)
}

func TestTransactionDeletedPageSetDrains(t *testing.T) {
	txn := New(1, ReadCommitted)
	txn.AddToDeletedPageSet(1)
	txn.AddToDeletedPageSet(2)
	txn.AddToDeletedPageSet(1)

	ids := txn.DeletedPageSet()
	assert.ElementsMatch(t, []common.PageID{1, 2}, ids)

	assert.Empty(t, txn.DeletedPageSet())
}
