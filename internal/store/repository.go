package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutorcore/internal/config"
)

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = errors.New("store: not found")

// AttemptEnriched is the join projection attempt.recent_enriched returns:
// an Attempt joined with the fields of the Item it was recorded against.
type AttemptEnriched struct {
	Attempt
	ItemDifficulty float64
	ItemType       ItemType
}

// Repository is the storage collaborator contract (spec §6). The core never
// holds a *gorm.DB directly — every persistence operation crosses this
// interface so the decision core can be tested against a fake.
type Repository interface {
	CreateOrGetLearner(ctx context.Context, name string) (*Learner, error)

	ListConceptsByTopic(ctx context.Context, topicID uint) ([]*Concept, error)
	ConceptByID(ctx context.Context, id uint) (*Concept, error)

	SkillGet(ctx context.Context, learnerID, conceptID uint) (*SkillState, error)

	// RecordAttempt persists an accepted attempt, its resulting skill state,
	// and a skill-history snapshot in a single transaction. newState must
	// carry the post-update rating/uncertainty/mastery/counters; the
	// transaction both upserts the skill row and inserts the history
	// snapshot linked to the new attempt id.
	RecordAttempt(ctx context.Context, attempt *Attempt, newState *SkillState) (attemptID uint, err error)

	AttemptRecentEnriched(ctx context.Context, learnerID uint, limit int) ([]AttemptEnriched, error)
	AttemptCorrectTexts(ctx context.Context, learnerID uint) (map[string]struct{}, error)

	ItemInsert(ctx context.Context, item *Item) (uint, error)
	ItemByID(ctx context.Context, id uint) (*Item, error)

	SessionCreate(ctx context.Context, learnerID uint, topicID *uint) (*Session, error)
	SessionByID(ctx context.Context, id string) (*Session, error)
	SessionSetCurrent(ctx context.Context, sessionID string, itemID uint, lastResultBlob string) error
	SessionEnd(ctx context.Context, sessionID string) (*Session, error)

	SkillHistoryInsert(ctx context.Context, snapshot *SkillHistory) error
}

// GormRepository implements Repository over a relational gorm.DB. Its
// method-per-operation shape mirrors the teacher's Qdrant-backed goal/skill
// repositories, ported from point storage to relational rows and
// transactions since this domain's dedup/recency queries are exact-text
// and join-based, never approximate-similarity.
type GormRepository struct {
	db  *gorm.DB
	cfg config.TutorConfig
}

func NewGormRepository(db *gorm.DB, cfg config.TutorConfig) *GormRepository {
	return &GormRepository{db: db, cfg: cfg}
}

func (r *GormRepository) CreateOrGetLearner(ctx context.Context, name string) (*Learner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("store: learner name must not be empty")
	}
	var l Learner
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&l).Error
	if err == nil {
		return &l, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	l = Learner{Name: name, CreatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Create(&l).Error; err != nil {
		// Lost the race against a concurrent create_or_get for the same name.
		if err2 := r.db.WithContext(ctx).Where("name = ?", name).First(&l).Error; err2 == nil {
			return &l, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *GormRepository) ListConceptsByTopic(ctx context.Context, topicID uint) ([]*Concept, error) {
	var concepts []*Concept
	err := r.db.WithContext(ctx).
		Preload("Prerequisites").
		Where("topic_id = ?", topicID).
		Order("order_index asc").
		Find(&concepts).Error
	return concepts, err
}

func (r *GormRepository) ConceptByID(ctx context.Context, id uint) (*Concept, error) {
	var c Concept
	err := r.db.WithContext(ctx).Preload("Prerequisites").First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SkillGet returns the persisted row, or the configured defaults if the
// learner has never attempted this concept. It never inserts a row itself;
// the first RecordAttempt for the pair does that.
func (r *GormRepository) SkillGet(ctx context.Context, learnerID, conceptID uint) (*SkillState, error) {
	var s SkillState
	err := r.db.WithContext(ctx).
		Where("learner_id = ? AND concept_id = ?", learnerID, conceptID).
		First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &SkillState{
		LearnerID:   learnerID,
		ConceptID:   conceptID,
		Rating:      r.cfg.InitialSkillRating,
		Uncertainty: r.cfg.InitialUncertainty,
		Mastery:     0,
	}, nil
}

// RecordAttempt upserts the skill row, inserts the attempt, and inserts the
// history snapshot in one transaction. The transaction boundary (plus
// sqlite's single-writer semantics / postgres row locking under
// `SELECT ... FOR UPDATE`) is what the repository guarantees to exclude
// concurrent updates to the same (learner, concept) row, per spec §5.
func (r *GormRepository) RecordAttempt(ctx context.Context, attempt *Attempt, newState *SkillState) (uint, error) {
	var attemptID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing SkillState
		lockErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("learner_id = ? AND concept_id = ?", newState.LearnerID, newState.ConceptID).
			First(&existing).Error
		switch {
		case lockErr == nil:
			existing.Rating = newState.Rating
			existing.Uncertainty = newState.Uncertainty
			existing.Mastery = newState.Mastery
			existing.TotalAttempts = newState.TotalAttempts
			existing.CorrectAttempts = newState.CorrectAttempts
			existing.LastUpdated = newState.LastUpdated
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("skill update: %w", err)
			}
		case errors.Is(lockErr, gorm.ErrRecordNotFound):
			if err := tx.Create(newState).Error; err != nil {
				return fmt.Errorf("skill insert: %w", err)
			}
		default:
			return lockErr
		}

		if err := tx.Create(attempt).Error; err != nil {
			return fmt.Errorf("attempt insert: %w", err)
		}
		attemptID = attempt.ID

		snapshot := &SkillHistory{
			AttemptID:   attemptID,
			LearnerID:   newState.LearnerID,
			ConceptID:   newState.ConceptID,
			Rating:      newState.Rating,
			Uncertainty: newState.Uncertainty,
			Mastery:     newState.Mastery,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(snapshot).Error; err != nil {
			return fmt.Errorf("skill history insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return attemptID, nil
}

func (r *GormRepository) AttemptRecentEnriched(ctx context.Context, learnerID uint, limit int) ([]AttemptEnriched, error) {
	var rows []AttemptEnriched
	err := r.db.WithContext(ctx).Table("attempts").
		Select("attempts.*, items.difficulty as item_difficulty, items.type as item_type").
		Joins("JOIN items ON items.id = attempts.item_id").
		Where("attempts.learner_id = ?", learnerID).
		Order("attempts.timestamp desc").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *GormRepository) AttemptCorrectTexts(ctx context.Context, learnerID uint) (map[string]struct{}, error) {
	var contents []string
	err := r.db.WithContext(ctx).Table("attempts").
		Select("items.content").
		Joins("JOIN items ON items.id = attempts.item_id").
		Where("attempts.learner_id = ? AND attempts.is_correct = ?", learnerID, true).
		Pluck("items.content", &contents).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(contents))
	for _, c := range contents {
		out[NormalizeText(c)] = struct{}{}
	}
	return out, nil
}

func (r *GormRepository) ItemInsert(ctx context.Context, item *Item) (uint, error) {
	item.CreatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return 0, err
	}
	return item.ID, nil
}

func (r *GormRepository) ItemByID(ctx context.Context, id uint) (*Item, error) {
	var item Item
	err := r.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *GormRepository) SessionCreate(ctx context.Context, learnerID uint, topicID *uint) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		TopicID:   topicID,
		StartedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *GormRepository) SessionByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormRepository) SessionSetCurrent(ctx context.Context, sessionID string, itemID uint, lastResultBlob string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"current_item_id":  itemID,
			"last_result_blob": lastResultBlob,
		}).Error
}

func (r *GormRepository) SessionEnd(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&s, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		var total, correct int64
		if err := tx.Model(&Attempt{}).Where("session_id = ?", sessionID).Count(&total).Error; err != nil {
			return err
		}
		if err := tx.Model(&Attempt{}).Where("session_id = ? AND is_correct = ?", sessionID, true).Count(&correct).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		s.EndedAt = &now
		s.TotalAttempts = int(total)
		s.TotalCorrect = int(correct)
		return tx.Save(&s).Error
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormRepository) SkillHistoryInsert(ctx context.Context, snapshot *SkillHistory) error {
	snapshot.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(snapshot).Error
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeText is the canonical dedup-key normalization shared by the
// repository's lifetime-correct query and internal/dedup's session set:
// lowercase, collapse whitespace.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRe.ReplaceAllString(s, " ")
}
