// Package integration turns the notify section of the configuration into live
// notification sinks.
//
// A Registry maps integration type names to factories. Default returns a
// registry holding the built-in types:
//
//	terminal   writes every notification to stdout (or stderr)
//	slack      posts an attachment to a Slack incoming webhook
//	trello     adds checklist items to a card, or cards to a list
//	webhook    POSTs each notification as a structured CloudEvent
//	websocket  broadcasts notifications to connected WebSocket clients
//
// Registry.LoadCustom adds plugin-provided types declared under
// custom_integrations, and Registry.Build instantiates one integration per
// declared alias.
package integration
