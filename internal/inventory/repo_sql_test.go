package inventory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubRow mimics the driver's NULL handling: a NULL column can only land in
// a pointer destination.
type stubRow struct {
	values []any
}

func (r stubRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(r.values), len(dest))
	}
	for i, value := range r.values {
		if value == nil {
			ptr, ok := dest[i].(**int64)
			if !ok {
				return fmt.Errorf("scan: cannot assign NULL to %T", dest[i])
			}
			*ptr = nil
			continue
		}
		switch d := dest[i].(type) {
		case *int64:
			*d = value.(int64)
		case **int64:
			v := value.(int64)
			*d = &v
		case *string:
			*d = value.(string)
		case *time.Time:
			*d = value.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func TestScanProductNullBatch(t *testing.T) {
	now := time.Now()

	p, err := scanProduct(stubRow{values: []any{int64(7), "SKU-1", "Wool coat", nil, int64(5), int64(1), int64(3), now, now}})
	require.NoError(t, err)
	require.EqualValues(t, 0, p.BatchID)
	require.EqualValues(t, 5, p.Quantity)

	p, err = scanProduct(stubRow{values: []any{int64(7), "SKU-1", "Wool coat", int64(42), int64(5), int64(1), int64(3), now, now}})
	require.NoError(t, err)
	require.EqualValues(t, 42, p.BatchID)
}
