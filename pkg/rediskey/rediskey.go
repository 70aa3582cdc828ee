package rediskey

import "fmt"

const (
	LockPrefix    = "lock"
	OrderNoPrefix = "seq:order_no"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// SettlementLockKey guards the affiliate settlement sweep.
func SettlementLockKey() string {
	return NamespaceKey(LockPrefix, "affiliate:settlement")
}

// ReconcileLockKey guards the order audit reconcile sweep.
func ReconcileLockKey() string {
	return NamespaceKey(LockPrefix, "order:reconcile")
}

// OrderNoKey reserves a candidate order number, "seq:order_no:{no}".
func OrderNoKey(orderNo string) string {
	return NamespaceKey(OrderNoPrefix, orderNo)
}
