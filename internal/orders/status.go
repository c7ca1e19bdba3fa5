package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// validNext is forward-only: a status may advance past intermediate steps,
// never move back. Cancelled is reachable until the order is delivered.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// ownerCancellable is stricter than validNext: shoppers cannot cancel a
// shipped order, only an administrator can.
var ownerCancellable = map[Status]bool{
	StatusPending:    true,
	StatusProcessing: true,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PaymentMethodCOD is cash on delivery; every other method is a prepayment.
const PaymentMethodCOD = "cod"
