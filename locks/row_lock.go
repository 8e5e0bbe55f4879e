package locks

import (
	"GLM/configs"
	"fmt"
	"github.com/juju/errors"
	"sort"
	"strings"
)

// LockStatus is shared by every row lock of one global transaction.
type LockStatus uint8

const (
	// Locked rows are acquired and held.
	Locked LockStatus = 0
	// Rollbacking rows belong to a transaction that is unwinding. They stay
	// unavailable to other transactions until they are deleted.
	Rollbacking LockStatus = 1
)

func (s LockStatus) String() string {
	switch s {
	case Locked:
		return "Locked"
	case Rollbacking:
		return "Rollbacking"
	default:
		return fmt.Sprintf("LockStatus(%d)", uint8(s))
	}
}

// PrimaryKey holds the primary key columns of a row in declaration order.
type PrimaryKey []string

// String encodes the key, escaping the column splitter inside values.
func (pk PrimaryKey) String() string {
	cols := make([]string, len(pk))
	for i, c := range pk {
		c = strings.ReplaceAll(c, configs.PKEscape, configs.PKEscape+configs.PKEscape)
		cols[i] = strings.ReplaceAll(c, configs.PKColumnSplitter, configs.PKEscape+configs.PKColumnSplitter)
	}
	return strings.Join(cols, configs.PKColumnSplitter)
}

// Compare orders keys column by column, a shorter key sorts first on a tie.
func (pk PrimaryKey) Compare(other PrimaryKey) int {
	for i := 0; i < len(pk) && i < len(other); i++ {
		if c := strings.Compare(pk[i], other[i]); c != 0 {
			return c
		}
	}
	return len(pk) - len(other)
}

// ParsePrimaryKey is the inverse of PrimaryKey.String.
func ParsePrimaryKey(s string) PrimaryKey {
	res := PrimaryKey{}
	var cur strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case string(r) == configs.PKEscape:
			escaped = true
		case string(r) == configs.PKColumnSplitter:
			res = append(res, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(res, cur.String())
}

// RowLock is one row's lock claim made by a branch of a global transaction.
type RowLock struct {
	XID           string     `json:"xid"`
	TransactionID int64      `json:"transactionId"`
	BranchID      int64      `json:"branchId"`
	ResourceID    string     `json:"resourceId"`
	TableName     string     `json:"tableName"`
	PK            PrimaryKey `json:"pk"`
	Status        LockStatus `json:"status"`
}

// RowKey identifies the locked row regardless of the owning transaction.
func RowKey(resourceID, tableName string, pk PrimaryKey) string {
	return resourceID + configs.RowKeySplitter + tableName + configs.RowKeySplitter + pk.String()
}

func (r *RowLock) RowKey() string {
	return RowKey(r.ResourceID, r.TableName, r.PK)
}

func (r *RowLock) String() string {
	return fmt.Sprintf("%s[%s,%d,%s]", r.RowKey(), r.XID, r.BranchID, r.Status)
}

// Validate reports rows that can not be turned into a lock record.
func (r *RowLock) Validate() error {
	if r == nil {
		return errors.NotValidf("nil row lock")
	}
	if r.XID == "" || r.ResourceID == "" || r.TableName == "" || len(r.PK) == 0 {
		return errors.NotValidf("row lock %s of xid %q", r.RowKey(), r.XID)
	}
	if len(r.RowKey()) > configs.MaxRowKeyLength {
		return errors.NotValidf("row key longer than %d bytes %q", configs.MaxRowKeyLength, r.RowKey())
	}
	return nil
}

// ValidateRows checks every row of a batch.
func ValidateRows(rows []*RowLock) error {
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SortRows orders rows by resource, table and then primary key columns so
// that stores lock them in a stable order.
func SortRows(rows []*RowLock) []*RowLock {
	res := make([]*RowLock, len(rows))
	copy(res, rows)
	sort.SliceStable(res, func(i, j int) bool {
		return compareRows(res[i], res[j]) < 0
	})
	return res
}

func compareRows(a, b *RowLock) int {
	if c := strings.Compare(a.ResourceID, b.ResourceID); c != 0 {
		return c
	}
	if c := strings.Compare(a.TableName, b.TableName); c != 0 {
		return c
	}
	return a.PK.Compare(b.PK)
}

// DistinctRows drops repeated row keys, keeping the first occurrence.
func DistinctRows(rows []*RowLock) []*RowLock {
	seen := make(map[string]bool, len(rows))
	res := make([]*RowLock, 0, len(rows))
	for _, r := range rows {
		k := r.RowKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		res = append(res, r)
	}
	return res
}

// RowKeys lists the row keys of a batch, in order.
func RowKeys(rows []*RowLock) []string {
	res := make([]string, len(rows))
	for i, r := range rows {
		res[i] = r.RowKey()
	}
	return res
}

// GroupByXID splits a batch by owning transaction.
func GroupByXID(rows []*RowLock) map[string][]*RowLock {
	res := make(map[string][]*RowLock)
	for _, r := range rows {
		res[r.XID] = append(res[r.XID], r)
	}
	return res
}
