package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthEvents holds one point per login, lockout, registration
// and family membership change.
const MeasurementAuthEvents = "auth_events"

// Event is an audit event reduced to what the metrics bucket keeps.
// Category, Action and Outcome become tags; Fields holds numeric extras
// such as failures or lock_minutes and may be nil.
type Event struct {
	Category string
	Action   string
	Outcome  string
	Fields   map[string]any
	At       time.Time
}

// WriteEvent queues one point. It returns immediately; see SetOnError.
//
//	client.WriteEvent(influxdb.Event{
//		Category: "auth",
//		Action:   "lockout",
//		Outcome:  "failure",
//		Fields:   map[string]any{"lock_minutes": 2},
//		At:       time.Now(),
//	})
func (c *Client) WriteEvent(e Event) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(e))
}

// eventPoint builds the auth_events point. count=1 is always present so
// sums over a window give event counts.
func eventPoint(e Event) *write.Point {
	values := map[string]any{"count": 1}
	for k, v := range e.Fields {
		values[k] = v
	}

	tags := map[string]string{
		"action":  e.Action,
		"outcome": e.Outcome,
	}
	if e.Category != "" {
		tags["category"] = e.Category
	}

	return write.NewPoint(MeasurementAuthEvents, tags, values, e.At)
}
