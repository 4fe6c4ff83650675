package store

import (
	"time"

	"gorm.io/datatypes"
)

// StringList persists an ordered slice of strings as a single JSON
// column. Used for mcq Item.Options: a proper join table would give the
// same data with none of the ordering guarantee mcq choices need.
//
// Grounded on internal/dialogue/state.go's datatypes.JSON columns, generic
// over the slice type instead of that struct's hand-marshaled []byte
// fields since JSONType's Value/Scan already cover that round trip.
type StringList = datatypes.JSONType[[]string]

// NewStringList wraps a plain slice for storage in a StringList column.
func NewStringList(values []string) StringList {
	return datatypes.NewJSONType(values)
}

// Learner is created once per name and never mutated thereafter.
type Learner struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// Topic groups an ordered set of Concepts.
type Topic struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"not null"`
}

// Concept is a curriculum node within a Topic. Prerequisites are modeled as
// a self-referential many2many join so the prerequisite set stays a plain
// relational query rather than an embedded id list.
type Concept struct {
	ID               uint      `gorm:"primaryKey"`
	TopicID          uint      `gorm:"index;not null"`
	Name             string    `gorm:"not null"`
	Description      string
	OrderIndex       int       `gorm:"index"`
	MasteryThreshold float64   `gorm:"default:0.75"`
	VisualRequired   bool
	Prerequisites    []*Concept `gorm:"many2many:concept_prerequisites;joinForeignKey:ConceptID;JoinReferences:PrerequisiteID"`
}

// SkillState is a derived aggregate, unique by (learner_id, concept_id). An
// absent row is semantically equal to the configured defaults — callers use
// Repository.SkillGet, never read this struct's zero value directly.
type SkillState struct {
	ID              uint `gorm:"primaryKey"`
	LearnerID       uint `gorm:"uniqueIndex:idx_skill_learner_concept"`
	ConceptID       uint `gorm:"uniqueIndex:idx_skill_learner_concept"`
	Rating          float64
	Uncertainty     float64
	Mastery         float64
	TotalAttempts   int
	CorrectAttempts int
	LastUpdated     time.Time
}

// ItemType enumerates the three recognized item shapes.
type ItemType string

const (
	ItemMCQ         ItemType = "mcq"
	ItemShortAnswer ItemType = "short_answer"
	ItemProblem     ItemType = "problem"
)

// Item is write-once: never mutated after acceptance.
type Item struct {
	ID                uint     `gorm:"primaryKey"`
	ConceptID         uint     `gorm:"index;not null"`
	Content           string   `gorm:"not null"`
	Type              ItemType `gorm:"not null"`
	Options           StringList
	CorrectAnswer     string `gorm:"not null"`
	Explanation       string
	Difficulty        float64
	EstimatedPCorrect float64
	PromptUsed        string
	ModelUsed         string
	CreatedAt         time.Time
}

// Attempt is append-only.
type Attempt struct {
	ID            uint   `gorm:"primaryKey"`
	ItemID        uint   `gorm:"index;not null"`
	LearnerID     uint   `gorm:"index;not null"`
	SessionID     *string `gorm:"index"`
	ConceptID     uint   `gorm:"index;not null"`
	AnswerGiven   *string
	IsCorrect     bool
	PartialScore  *float64
	ResponseTimeS *float64
	RatingBefore  float64
	RatingAfter   float64
	Timestamp     time.Time `gorm:"index"`
}

// Session owns its current-item reference and last-result blob by opaque
// id and foreign key only — never by embedding the Item/Attempt objects
// themselves, which would turn the benign Session/Attempt cycle into an
// actual one.
type Session struct {
	ID              string `gorm:"primaryKey"`
	LearnerID       uint   `gorm:"index;not null"`
	TopicID         *uint
	StartedAt       time.Time
	EndedAt         *time.Time
	CurrentItemID   *uint
	LastResultBlob  string
	TotalAttempts   int
	TotalCorrect    int
}

// SkillHistory is an immutable snapshot keyed to the attempt that triggered it.
type SkillHistory struct {
	ID          uint `gorm:"primaryKey"`
	AttemptID   uint `gorm:"index;not null"`
	LearnerID   uint `gorm:"index;not null"`
	ConceptID   uint `gorm:"index;not null"`
	Rating      float64
	Uncertainty float64
	Mastery     float64
	CreatedAt   time.Time
}

// AllModels lists every struct AutoMigrate must register, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Learner{},
		&Topic{},
		&Concept{},
		&SkillState{},
		&Item{},
		&Attempt{},
		&Session{},
		&SkillHistory{},
	}
}
