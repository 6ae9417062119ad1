package aggregate

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// Raw rows come from pgx (RowToMap) or the memory store, so column values
// arrive as whatever the driver decoded. These accessors flatten the common
// shapes and treat anything else as absent.

func str(row store.Row, col string) string {
	switch v := row[col].(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

func nullStr(row store.Row, col string) *string {
	switch v := row[col].(type) {
	case nil:
		return nil
	case *string:
		return v
	}
	s := str(row, col)
	return &s
}

func int64Of(row store.Row, col string) int64 {
	switch v := row[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func boolOf(row store.Row, col string) bool {
	switch v := row[col].(type) {
	case bool:
		return v
	case *bool:
		return v != nil && *v
	}
	return false
}

func timeOf(row store.Row, col string) time.Time {
	switch v := row[col].(type) {
	case time.Time:
		return v.UTC()
	case *time.Time:
		if v != nil {
			return v.UTC()
		}
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
