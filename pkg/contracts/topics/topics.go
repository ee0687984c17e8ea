package topics

const (
	// Oracle (request/response assíncrono, correlacionado por correlation_id)
	OracleRequests     = "oracle_requests"
	OracleFulfillments = "oracle_fulfillments"

	// Ciclo de vida dos pools
	PoolEvents = "pool_events"

	// DLQs
	OracleFulfillmentsDLQ = "oracle_fulfillments_dlq"
)
