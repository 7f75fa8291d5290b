// Package harness replays scripted cart sessions against the real
// bindings, dispatcher and reconciler, with the network replaced by a
// transport whose responses the scenario releases one at a time.
//
// # Scenario Format
//
//	name: update_out_of_order
//	description: "A slow response never overwrites a newer one"
//	cart:
//	  count: 1
//	  total: "12.50"
//	  items: { "1": "12.50" }
//	steps:
//	  - issue: update_qty
//	    ref: slow
//	    args: { item_id: "1", quantity: "2" }
//	  - issue: update_qty
//	    ref: fast
//	    args: { item_id: "1", quantity: "3" }
//	  - respond: fast
//	    status: 200
//	    body: { cart_count: 1, cart_total: "37.50", item_total: "37.50" }
//	  - respond: slow
//	    status: 200
//	    body: { cart_count: 1, cart_total: "25.00", item_total: "25.00" }
//	  - advance: 3s
//	assertions:
//	  - type: final_state
//	    path: page.cart.total
//	    expect: "37.50"
//	  - type: stale
//	    ref: slow
//	    scope: line_item_total:1
//
// # Steps
//
// Each step does exactly one thing:
//
//   - issue: run a binding (add, update_qty, remove, apply_coupon,
//     subscribe) with args. The step waits until the request reaches the
//     transport, so refs bind to requests in issue order.
//   - respond: answer the request issued under ref with status and body,
//     or with network_error, then wait for its continuation to run.
//   - advance: move the notification clock forward.
//   - dismiss: dismiss a notification by id. Ids are "toast-1",
//     "toast-2", ... in creation order.
//
// # Determinism
//
// Every run uses a fixed session id, a fake clock starting at
// testutil.Epoch, sequential notification ids and an in-memory journal,
// so the final snapshot is byte-identical across runs and can be
// compared against a golden file.
package harness
