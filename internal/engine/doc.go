// Package engine executes compiled Goatspeak instructions against a
// document tree.
//
//	eng := engine.New(engine.WithLogger(logger))
//	results, err := eng.Run(ctx, root, "SCRAPE p; EXTRACT body;")
//	for _, row := range results.Projections() { ... }
//
// OUTPUT statements are passed to the Deliverer given with WithDeliverer.
package engine
