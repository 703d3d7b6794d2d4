package fulfillment

// An Outcome is the terminal action taken for one delivery
type Outcome int

const (
	// OutcomeConfirmed: the order was confirmed, the event broadcast and the delivery acked
	OutcomeConfirmed Outcome = iota
	// OutcomeIgnored: the order is unknown to the ledger, the delivery was acked
	OutcomeIgnored
	// OutcomeAlreadyProcessed: the order had already left PENDING, the delivery was acked
	OutcomeAlreadyProcessed
	// OutcomeRetryScheduled: a copy with the next attempt number was published and the original acked
	OutcomeRetryScheduled
	// OutcomeDeadLettered: the delivery was rejected without requeue and routed to the dead-letter queue
	OutcomeDeadLettered
	// OutcomeRequeued: the retry copy could not be published, the original went back to the queue
	OutcomeRequeued
	// OutcomeRejected: the message could not be decoded and was dead-lettered on the first attempt
	OutcomeRejected
)

var outcomeNames = map[Outcome]string{
	OutcomeConfirmed:        "CONFIRMED",
	OutcomeIgnored:          "IGNORED",
	OutcomeAlreadyProcessed: "ALREADY_PROCESSED",
	OutcomeRetryScheduled:   "RETRY_SCHEDULED",
	OutcomeDeadLettered:     "DEAD_LETTERED",
	OutcomeRequeued:         "REQUEUED",
	OutcomeRejected:         "REJECTED",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}
