package statuspb

// Field names of the GetStatus struct and of each ListOutcomes entry.
const (
	FieldRunID         = "run_id"
	FieldParticipantID = "participant_id"
	FieldState         = "state"
	FieldToSend        = "to_send"
	FieldLeader        = "leader"
	FieldHasLeader     = "has_leader"
	FieldWinner        = "winner"
	FieldTicks         = "ticks"
	FieldCounters      = "counters"
	FieldStartedAt     = "started_at"
	FieldUpdatedAt     = "updated_at"

	FieldLeaderID   = "leader_id"
	FieldFinishedAt = "finished_at"
	FieldDurationMS = "duration_ms"

	CounterReceived = "received"
	CounterAdopted  = "adopted"
	CounterStale    = "stale"
	CounterIgnored  = "ignored"
	CounterSent     = "sent"
	CounterRefused  = "refused"
	CounterDropped  = "dropped"
)
