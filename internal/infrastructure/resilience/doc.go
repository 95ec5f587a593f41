/*
Package resilience provides the circuit breakers guarding outbound traffic
issued on behalf of the script runtime.

Every fetch and event-stream request the wallet script makes goes to an
origin outside our control. A Group keeps one Breaker per upstream host so a
dead RPC endpoint is short-circuited without starving calls to healthy ones.

# Usage

	group := resilience.NewGroup("fetch", resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	body, err := resilience.Execute(group.Get(host), func() ([]byte, error) {
		return doRequest()
	})

Long-lived requests such as event streams reserve a slot with Allow and
report the outcome once the connection is established.

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                      [failure]
	                                           v
	                                         Open
*/
package resilience
