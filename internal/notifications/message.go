package notifications

import (
	"fmt"
	"strconv"

	"github.com/albapepper/morningcast/internal/push"
	"github.com/albapepper/morningcast/internal/weather"
)

// Compose builds the morning message for a condition code. It is total:
// every code yields a message.
func Compose(code int, username string) push.Message {
	return push.Message{
		Title: fmt.Sprintf("Good Morning %s!", username),
		Body:  weather.Advisory(code),
	}
}

// withData attaches the structured payload the mobile client reads.
func withData(msg push.Message, code int, zone string) push.Message {
	msg.Data = map[string]string{
		"kind":           "morning_weather",
		"condition_code": strconv.Itoa(code),
		"condition":      weather.Group(code),
		"timezone":       zone,
	}
	return msg
}
