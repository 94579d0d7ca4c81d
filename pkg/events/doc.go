/*
Package events is an in-memory, non-blocking pub/sub broker for
operational events raised by the storage substrate — repairs,
derivation completion, segmented changelog replication. Publish never
waits on a subscriber; a subscriber with a full buffer just misses
events. Publish does wait while the broker's internal 100-event queue
is full (for example before Start), and returns at once after Stop.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	broker.Publish(&events.Event{Type: events.EventIndexedLogRepaired, RepoID: repoID})

There is no persistence or replay; a subscriber that wants history must
keep its own log of what it has seen.
*/
package events
