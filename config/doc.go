// Package config loads the webapisync configuration.
//
// Configuration starts from Default, is overlaid with a YAML (or JSON) file
// and then with WEBAPISYNC_* environment variables:
//
//	cfg, err := config.Load("webapisync.yaml")
//	if err != nil {
//		return err
//	}
//
// A minimal file only names what differs from the defaults:
//
//	receiver:
//	  base_url: http://+:54000/orders
//	  persist_messages: true
//	drain:
//	  stylesheet: orders.yaml
//	destination:
//	  driver: sqlite
//	  dsn: file:orders.db
//	  table: Orders
//	  columns:
//	    - {name: OrderId, kind: string}
//	    - {name: Quantity, kind: real}
//	    - {name: DueDate, kind: datetime}
//
// SafeConfig guards a configuration shared between goroutines. Get always
// returns a copy, so callers may modify what they receive.
package config
