/*
Package observability instruments the editing engine.

Metrics registers Prometheus collectors and exposes them as undo hooks, an
authority decorator and an error reporter. LogHooks emits the same events as
structured log records. Hooks from several sources are combined with Chain.

	m := observability.NewMetrics(prometheus.NewRegistry())
	eng := undo.NewEngine(g, observability.InstrumentAuthority(auth, m),
		undo.WithHooks(observability.Chain(m.Hooks(), observability.LogHooks(logger))),
	)
*/
package observability
