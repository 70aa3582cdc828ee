package taskname

const (
	// Affiliate tasks
	AffiliateSettlementRun = "affiliate:settlement:run"

	// Order tasks
	OrderAuditReconcile = "order:audit:reconcile"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
