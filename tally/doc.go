// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package tally keeps the voter's local view of the ledger consistent.

A Reconciler holds HasVoted, VotedFor, the per-participant tallies, the
roster and the current leader. Initialize must succeed before voting is
enabled. After that, Run refreshes the projection on two timers (tallies
every 15s, leader and roster every 30s by default) and on every event from
the push channel. Polling is the baseline; push only lowers latency.

Refreshes replace tallies wholesale. Each request is tagged with a
generation and its response is dropped if something newer has already
been applied, including a local optimistic vote.

Leader policy: no leader while every count is zero. Ties set Leader.Tied
and report the participant whose id sorts first.
*/
package tally
