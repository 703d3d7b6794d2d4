package rabbitmq

import (
	"math"
	"strconv"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// HeaderRetryCount carries the attempt counter across republished copies
	HeaderRetryCount = "retry-count"
	// LegacyHeaderRetryCount is read for messages republished by older workers
	LegacyHeaderRetryCount = "x-retry-count"

	headerDeath = "x-death"
)

// RetryCount reads the attempt counter from message headers. A missing or
// unreadable counter counts as the first attempt.
func RetryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	for _, key := range []string{HeaderRetryCount, LegacyHeaderRetryCount} {
		if v, ok := headers[key]; ok {
			if n, ok := toInt(v); ok && n >= 0 {
				return n
			}
		}
	}
	return 0
}

// WithRetryCount returns a copy of headers with the attempt counter set to n
func WithRetryCount(headers amqp.Table, n int) amqp.Table {
	out := make(amqp.Table, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	delete(out, LegacyHeaderRetryCount)
	out[HeaderRetryCount] = int32(n)
	return out
}

// WithoutRetryState returns a copy of headers stripped of the attempt counter
// and of the broker's dead-letter bookkeeping
func WithoutRetryState(headers amqp.Table) amqp.Table {
	out := make(amqp.Table, len(headers))
	for k, v := range headers {
		switch {
		case k == HeaderRetryCount, k == LegacyHeaderRetryCount, k == headerDeath:
		case strings.HasPrefix(k, "x-first-death-"), strings.HasPrefix(k, "x-last-death-"):
		default:
			out[k] = v
		}
	}
	return out
}

// DeathInfo extracts the most recent dead-letter record the broker attached
func DeathInfo(headers amqp.Table) (reason, queue string, count int64) {
	deaths, ok := headers[headerDeath].([]interface{})
	if !ok || len(deaths) == 0 {
		return "", "", 0
	}
	death, ok := deaths[0].(amqp.Table)
	if !ok {
		return "", "", 0
	}
	reason, _ = death["reason"].(string)
	queue, _ = death["queue"].(string)
	if n, ok := toInt(death["count"]); ok {
		count = int64(n)
	}
	return reason, queue, count
}

// toInt accepts any AMQP numeric encoding of a value that fits in an int32
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return fromInt64(int64(n))
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return fromInt64(n)
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return fromUint64(uint64(n))
	case uint64:
		return fromUint64(n)
	case float32:
		return fromFloat64(float64(n))
	case float64:
		return fromFloat64(n)
	case string:
		return fromString(n)
	case []byte:
		return fromString(string(n))
	}
	return 0, false
}

func fromInt64(n int64) (int, bool) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func fromUint64(n uint64) (int, bool) {
	if n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

func fromFloat64(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func fromString(s string) (int, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
