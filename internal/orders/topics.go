package orders

import "fmt"

const (
	TopicNotifications     = "storefront.notifications"
	TopicEmailOutbox       = "storefront.email.outbox"
	TopicCompensationAudit = "stock.compensation.failed"
)

// Realtime channels. Admin dashboards follow every order; shoppers only
// their own.
const ChannelAdminOrders = "orders:admin"

func UserChannel(userID string) string { return fmt.Sprintf("orders:user:%s", userID) }

// Partition key = order id (or attempt id), so events for one order stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
