// Package mqttbridge republishes peripheral events to an MQTT broker.
//
// Every event is published as a JSON document to
//
//	<prefix>/<address>/<kind>
//
// for example blecentral/AA:BB:CC:DD:EE:FF/device_discovered. The bridge
// status (online/offline) is kept as a retained message on <prefix>/status,
// with a Last Will so subscribers notice an unclean exit.
package mqttbridge
