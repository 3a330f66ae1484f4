// Package webapisync is an embedded HTTP endpoint that feeds a discrete-event
// simulation with messages posted by outside systems.
//
// # Data flow
//
//	HTTP POST ──► input/webhook ──► pkg/buffer (Receive)
//	                   │                  │
//	                   │ OnArrival        │ DrainAndClear
//	                   ▼                  ▼
//	              sim.Calendar ──► processor/drain
//	                                      │ per message
//	                                      ├─► processor/format     classify, JSON → XML
//	                                      ├─► processor/transform  stylesheet, XML → fragment
//	                                      ├─► processor/merge      fragments → one table
//	                                      └─► processor/materialize rows → destination
//	                                                  │
//	                                      table.Memory or storage/sqltable
//
// The receiver never converts anything. It appends the raw body, schedules
// the arrival notification on the simulation calendar and answers 200. The
// conversion work runs only when the simulation pulls it with a drain, on
// the calendar's single logical thread, so drains never overlap.
//
// A drain either writes every buffered message or nothing: one malformed
// message aborts the drain before the destination is touched, and the
// drained messages are not restored.
//
// # Optional parts
//
//   - output/tap mirrors every accepted payload to a NATS subject.
//   - metric serves Prometheus metrics and /healthz.
//   - processor/transform.FileSource reloads the stylesheet when its file
//     changes.
//
// # Running
//
//	webapisync serve -c webapisync.yaml
//	webapisync transform -s orders.yaml order1.json order2.xml
//	webapisync validate -c webapisync.yaml
package webapisync
