package redisrepo

import "fmt"

const ns = "tixqueue:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventAvailability(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:availability", ns, eventID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemReservation(eventID, userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:reservations:%d:%d:%s", ns, eventID, userID, idemKey)
}

func ChannelEvents() string {
	return ns + ":events"
}
