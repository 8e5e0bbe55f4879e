package locks

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestRowKeyComposition(t *testing.T) {
	r := &RowLock{XID: "x", ResourceID: "jdbc:mysql://R1/db", TableName: "orders", PK: PrimaryKey{"1", "a"}}
	assert.Equal(t, "jdbc:mysql://R1/db^^^orders^^^1_a", r.RowKey())

	// the same row claimed by another transaction has the same key.
	other := *r
	other.XID, other.BranchID = "y", 42
	assert.Equal(t, r.RowKey(), other.RowKey())
}

func TestCompositeKeysDoNotCollide(t *testing.T) {
	a := PrimaryKey{"a_b", "c"}
	b := PrimaryKey{"a", "b_c"}
	assert.NotEqual(t, a.String(), b.String())
	assert.Equal(t, a, ParsePrimaryKey(a.String()))
	assert.Equal(t, b, ParsePrimaryKey(b.String()))

	escaped := PrimaryKey{`C:\tmp_`, ""}
	assert.Equal(t, escaped, ParsePrimaryKey(escaped.String()))
}

func TestPrimaryKeyCompare(t *testing.T) {
	assert.Equal(t, 0, PrimaryKey{"1", "2"}.Compare(PrimaryKey{"1", "2"}))
	assert.True(t, PrimaryKey{"1", "2"}.Compare(PrimaryKey{"1", "3"}) < 0)
	assert.True(t, PrimaryKey{"2"}.Compare(PrimaryKey{"1", "9"}) > 0)
	assert.True(t, PrimaryKey{"1"}.Compare(PrimaryKey{"1", "0"}) < 0)
}

func TestValidate(t *testing.T) {
	var nilRow *RowLock
	assert.True(t, errors.IsNotValid(nilRow.Validate()))
	assert.True(t, errors.IsNotValid((&RowLock{XID: "x", ResourceID: "r", TableName: "t"}).Validate()))
	assert.NoError(t, (&RowLock{XID: "x", ResourceID: "r", TableName: "t", PK: PrimaryKey{"1"}}).Validate())

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'k'
	}
	assert.Error(t, (&RowLock{XID: "x", ResourceID: "r", TableName: "t", PK: PrimaryKey{string(long)}}).Validate())
}

func TestBatchHelpers(t *testing.T) {
	rows := []*RowLock{
		{XID: "x1", ResourceID: "r", TableName: "t", PK: PrimaryKey{"3"}},
		{XID: "x1", ResourceID: "r", TableName: "t", PK: PrimaryKey{"1"}},
		{XID: "x2", ResourceID: "r", TableName: "t", PK: PrimaryKey{"3"}},
	}
	sorted := SortRows(rows)
	assert.Equal(t, []string{"r^^^t^^^1", "r^^^t^^^3", "r^^^t^^^3"}, RowKeys(sorted))
	// input order is untouched.
	assert.Equal(t, "r^^^t^^^3", rows[0].RowKey())

	distinct := DistinctRows(rows)
	assert.Len(t, distinct, 2)
	assert.Equal(t, "x1", distinct[0].XID)

	groups := GroupByXID(rows)
	assert.Len(t, groups["x1"], 2)
	assert.Len(t, groups["x2"], 1)
}

func TestSortRowsByColumns(t *testing.T) {
	rows := []*RowLock{
		{XID: "x1", ResourceID: "r", TableName: "t", PK: PrimaryKey{"a_b"}},
		{XID: "x1", ResourceID: "r", TableName: "t", PK: PrimaryKey{"a", "c"}},
		{XID: "x1", ResourceID: "q", TableName: "u", PK: PrimaryKey{"z"}},
		{XID: "x1", ResourceID: "r", TableName: "s", PK: PrimaryKey{"z"}},
	}
	// the encoded keys order the first two rows the other way round.
	assert.True(t, rows[0].RowKey() < rows[1].RowKey())

	sorted := SortRows(rows)
	assert.Equal(t, []*RowLock{rows[2], rows[3], rows[1], rows[0]}, sorted)
}

func TestLockStatusString(t *testing.T) {
	assert.Equal(t, "Locked", Locked.String())
	assert.Equal(t, "Rollbacking", Rollbacking.String())
	assert.Equal(t, "LockStatus(7)", LockStatus(7).String())
}
