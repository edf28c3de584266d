// Package consulengine provides a statepersist.StorageEngine on top of the Consul KV store.
//
// Every storage address becomes one KV pair below a prefix ("statepersist/" by default), so
// several applications can share a Consul cluster and Clear only removes the engine's own pairs.
//
// Usage example:
//
//	client, _ := api.NewClient(api.DefaultConfig())
//	engine, _ := consulengine.NewEngine(client, consulengine.WithPrefix("my_app/state"))
//
//	plugin, _ := statepersist.NewPlugin(registry, statepersist.WithEngine(engine))
package consulengine
