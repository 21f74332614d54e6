package shared

import "fmt"

// InvoiceSequenceKey builds the redis counter key for a scope and billing period (YYYYMM).
func InvoiceSequenceKey(scopeID int64, period string) string {
	return fmt.Sprintf("stockplus:invoice-seq:%d:%s", scopeID, period)
}

// ProductCacheKey builds the redis key holding a cached catalog product.
func ProductCacheKey(version string, productID int64) string {
	return fmt.Sprintf("stockplus:catalog:%s:product:%d", version, productID)
}
