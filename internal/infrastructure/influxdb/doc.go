// Package influxdb writes family-tree security metrics to InfluxDB.
//
// Every login attempt, lockout, registration and membership change becomes
// one point in the auth_events measurement, tagged by category (auth or
// family), action and outcome, plus service and any configured tags.
// Dashboards use it to spot credential-stuffing waves (login failures and
// lockouts per minute) without touching the SQLite audit trail.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WriteEvent(influxdb.Event{Category: "auth", Action: "login", Outcome: "success", At: time.Now()})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; async write
// errors are delivered to the SetOnError callback.
package influxdb
