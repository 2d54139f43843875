// Package mqtt publishes family-tree domain events to an MQTT broker.
//
// The core is a pure publisher. Every login, lockout, registration and
// family membership change is emitted as a JSON event on
// {prefix}/events/{auth|family}/{action}, so notification and analytics
// services can react without polling the HTTP API. A retained status
// ServiceStatus on {prefix}/system/status, backed by a Last Will, tells
// consumers whether the core is online and which event streams it feeds.
//
// Publish waits for the broker acknowledgement. The audit MQTT sink calls it
// from a background worker behind a bounded queue, so a slow broker never
// delays a login.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithVersion(version))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Event("auth", "login")
//	err = client.PublishEvent(topic, payload)
package mqtt
