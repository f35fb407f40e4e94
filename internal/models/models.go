package models

// Student is one row of the students table; Login is the lookup key.
type Student struct {
	Login         string      `db:"login"          json:"login"`
	PasswordHash  string      `db:"password_hash"  json:"-"`
	Name          string      `db:"name"           json:"name"`
	ChatID        int64       `db:"chat_id"        json:"chat_id"`  // 0 = ещё не входил
	Schedule      string      `db:"schedule"       json:"schedule"` // "02.01.2006 15:04" или ""
	Homework      string      `db:"homework"       json:"homework"`
	Progress      string      `db:"progress"       json:"progress"`
	NotifiedStage NotifyStage `db:"notified_stage" json:"notified_stage"`
	CreatedAt     int64       `db:"created_at"     json:"created_at"`
}

// Field is one of the columns the admin may overwrite.
type Field string

const (
	FieldSchedule Field = "schedule"
	FieldHomework Field = "homework"
	FieldProgress Field = "progress"
)

func (f Field) Valid() bool {
	switch f {
	case FieldSchedule, FieldHomework, FieldProgress:
		return true
	}
	return false
}

type SubmissionKind string

const (
	KindHomework SubmissionKind = "homework"
	KindQuestion SubmissionKind = "question"
)

// Submission is a homework drop or a question for the tutor. Rows are append-only,
// only Answered ever changes.
type Submission struct {
	ID        string         `db:"id"`
	Login     string         `db:"login"`
	Kind      SubmissionKind `db:"kind"`
	Content   string         `db:"content"`
	FileID    string         `db:"file_id"` // telegram file_id of a photo or document
	Answered  bool           `db:"answered"`
	CreatedAt int64          `db:"created_at"`
}

// NotifyStage records which lesson notice was already delivered for the
// current schedule value.
type NotifyStage int

const (
	NotifyNone NotifyStage = iota
	NotifyPreLesson
	NotifyPostLesson
)
