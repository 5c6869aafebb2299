package models

// Kind selects one of the two name-keyed resources attached to meetings.
type Kind string

const (
	KindParticipant Kind = "participants"
	KindLabel       Kind = "labels"
)

func (k Kind) Valid() bool {
	return k == KindParticipant || k == KindLabel
}

type NamedRequest struct {
	Name *string `json:"name" validate:"omitempty,notblank,max=80"`
}

// Named is a participant or a label.
type Named struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
