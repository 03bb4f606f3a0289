// Package metrics exposes the CTI proxy's Prometheus collectors.
//
// Metrics live on a private registry so tests can build as many
// instances as they like. The hooks match the observer signatures of the
// event dispatcher and the proxy engine:
//
//	m := metrics.New()
//	dispatcher.SetObserver(func(ev string, o events.Outcome) { m.ObserveDispatch(ev, string(o)) })
//	engine.SetCommandObserver(m.ObserveCommand)
//	engine.OnAll(func(ev model.Event) { m.ObserveDomainEvent(ev.Name) })
//	m.WatchAMI(client.Stats)
//	router.Handle("/metrics", m.Handler())
package metrics
