// Package mqtt connects netfleet to an MQTT broker.
//
// The broker is an outward channel only: committed journal events are
// republished on it for observers outside the process (dashboards, other
// sites, integration scripts). Nothing inside netfleet depends on the
// broker being reachable, and the journal never fails an append because a
// publish failed.
//
// The client handles connection with auto-reconnect, the Last Will and
// Testament on <prefix>/system/status, and publishing with payload and QoS
// checks. Topics builds the topic tree; the journal publishes on
// Topics.Event so subscribers and publisher agree on names.
//
// # Topic tree
//
//	<prefix>/system/status           retained online/offline status
//	<prefix>/<kind>/<variant>        committed events, e.g. netfleet/device/device_adopted
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	store, err := journal.NewSQLiteStore(ctx, db, jcfg,
//	    journal.WithPublisher(client, byte(cfg.MQTT.QoS)),
//	    journal.WithTopics(client.Topics().Event))
//
// Errors wrap fault.ErrTransport when the broker is the cause and
// fault.ErrValidation when the caller passed a bad topic or QoS.
package mqtt
