// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package coordinator

import (
	"context"
	"log/slog"
)

type NoticeKind string

const (
	NoticeSuccess      NoticeKind = "success"
	NoticeAlreadyVoted NoticeKind = "already_voted"
	NoticeFailure      NoticeKind = "failure"
)

// Notifier surfaces user-visible messages about a settled attempt
type Notifier interface {
	Notify(kind NoticeKind, message string)
}

type NotifierFunc func(kind NoticeKind, message string)

func (f NotifierFunc) Notify(kind NoticeKind, message string) {
	f(kind, message)
}

// LogNotifier writes notices to the default slog logger
type LogNotifier struct{}

func (LogNotifier) Notify(kind NoticeKind, message string) {
	level := slog.LevelInfo
	if kind == NoticeFailure {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, message, "notice", string(kind))
}
