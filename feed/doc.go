// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package feed distributes committed-vote notifications.

# Hub

Hub is the in-process fan-out behind the SSE endpoint:

	hub := feed.NewHub(16)
	events, cancel := hub.Subscribe()
	defer cancel()

Publish never blocks; a subscriber whose buffer is full misses the event.
Consumers treat events as "something changed, re-fetch", so a missed event
only delays a refresh until the next poll.

# Redis Bridge

With several server instances, RedisBridge publishes to a redis channel and
Run forwards that channel into the local hub:

	bridge := feed.NewRedisBridge(rdb, feed.DefaultRedisChannel, hub)
	go bridge.Run(ctx)

# Kafka Export

KafkaPublisher writes each event to a topic, keyed by participant id.

# Composition

Multi publishes to several publishers and joins their errors:

	pub := feed.Multi{bridge, kafkaPublisher}
*/
package feed
