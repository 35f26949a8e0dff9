package domain

// UpdateKind classifies a processed inbound chat update. It is recorded in
// the idempotency ledger alongside the update identifier.
type UpdateKind string

const (
	UpdateKindCommand  UpdateKind = "command"
	UpdateKindImage    UpdateKind = "image"
	UpdateKindCallback UpdateKind = "callback"
	UpdateKindOther    UpdateKind = "other"
)
