/*
Package resilience keeps document fetches away from sites that keep failing.

A Breaker counts the outcomes of calls to one remote endpoint. After Trip
reports too many failures it opens and rejects calls with ErrCircuitOpen
for Cooldown, then lets Probes calls through. If they all succeed the
breaker closes, and a single failure opens it again. A Group keeps one
breaker per host:

	hosts := resilience.NewGroup(resilience.Settings{Cooldown: 30 * time.Second})

	body, err := resilience.Call(hosts.Get(u.Host), func() ([]byte, error) {
		return download(ctx, u)
	})

Healthy decides which errors count against a host; a 404 usually should not.
*/
package resilience
