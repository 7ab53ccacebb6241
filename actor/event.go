package actor

import (
	"log/slog"
	"time"
)

// EventLogger lets an event opt into being logged by the event stream; it is
// logged whether or not any subscriber receives it.
type EventLogger interface {
	Log() (slog.Level, string, []any)
}

// ActorStartedEvent is broadcast once a Receiver has processed Started and
// is ready to take messages.
type ActorStartedEvent struct {
	PID       *PID
	Timestamp time.Time
}

func (e ActorStartedEvent) Log() (slog.Level, string, []any) {
	return slog.LevelDebug, "actor started", []any{"pid", e.PID}
}

// ActorInitializedEvent is broadcast right after a Receiver is constructed,
// before it processes its Started message.
type ActorInitializedEvent struct {
	PID       *PID
	Timestamp time.Time
}

func (e ActorInitializedEvent) Log() (slog.Level, string, []any) {
	return slog.LevelDebug, "actor initialized", []any{"pid", e.PID}
}

// ActorStoppedEvent is broadcast once a process has fully torn down.
type ActorStoppedEvent struct {
	PID       *PID
	Timestamp time.Time
}

func (e ActorStoppedEvent) Log() (slog.Level, string, []any) {
	return slog.LevelDebug, "actor stopped", []any{"pid", e.PID}
}

// ActorRestartedEvent is broadcast when a process panics and is restarted.
type ActorRestartedEvent struct {
	PID        *PID
	Timestamp  time.Time
	Stacktrace []byte
	Reason     any
	Restarts   int32
}

func (e ActorRestartedEvent) Log() (slog.Level, string, []any) {
	return slog.LevelError, "actor crashed, restarting",
		[]any{"pid", e.PID.GetID(), "stack", string(e.Stacktrace),
			"reason", e.Reason, "restarts", e.Restarts}
}

// ActorMaxRestartsExceededEvent is broadcast when a process exhausts its
// restart budget and is torn down for good.
type ActorMaxRestartsExceededEvent struct {
	PID       *PID
	Timestamp time.Time
}

func (e ActorMaxRestartsExceededEvent) Log() (slog.Level, string, []any) {
	return slog.LevelError, "actor exceeded max restarts", []any{"pid", e.PID.GetID()}
}

// ActorDuplicateIdEvent is broadcast when a spawn collides with an
// already-registered ID.
type ActorDuplicateIdEvent struct {
	PID *PID
}

func (e ActorDuplicateIdEvent) Log() (slog.Level, string, []any) {
	return slog.LevelError, "actor id already taken", []any{"pid", e.PID.GetID()}
}

// EngineRemoteMissingEvent is broadcast when a send targets a non-local PID
// but the engine has no remote transport attached.
type EngineRemoteMissingEvent struct {
	Target  *PID
	Sender  *PID
	Message any
}

func (e EngineRemoteMissingEvent) Log() (slog.Level, string, []any) {
	return slog.LevelError, "engine has no remote transport", []any{"target", e.Target.GetID()}
}

// RemoteUnreachableEvent reports that a remote listen address could not be
// reached. No code in this module broadcasts it.
type RemoteUnreachableEvent struct {
	ListenAddr string
}

// DeadLetterEvent is broadcast when a message cannot be delivered to its
// intended recipient.
type DeadLetterEvent struct {
	Target  *PID
	Message any
	Sender  *PID
}
