package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tutorcore/internal/auth"
	"tutorcore/internal/generation"
	"tutorcore/internal/store"
)

// sessionTokenTTL bounds how long a learner's session token (and the
// active-session marker it mirrors in Redis) stays valid without a turn.
const sessionTokenTTL = 2 * time.Hour

// itemView is everything a learner is allowed to see about an item: never
// the correct answer or explanation, or grading would be meaningless.
type itemView struct {
	ID      uint           `json:"id"`
	Content string         `json:"content"`
	Type    store.ItemType `json:"type"`
	Options []string       `json:"options,omitempty"`
}

func toItemView(item *store.Item) itemView {
	return itemView{ID: item.ID, Content: item.Content, Type: item.Type, Options: item.Options.Data}
}

// turnOutcome is what session.LastResultBlob carries between submit and
// the next next()/precache() call: the previous attempt's grading result
// plus the concept/difficulty it was scored against, since the Session row
// itself only keeps a current item id.
type turnOutcome struct {
	IsCorrect      bool     `json:"is_correct"`
	IsClose        bool     `json:"is_close,omitempty"`
	PartialScore   *float64 `json:"partial_score,omitempty"`
	RatingBefore   float64  `json:"rating_before"`
	RatingAfter    float64  `json:"rating_after"`
	Feedback       string   `json:"feedback,omitempty"`
	ConceptID      uint     `json:"concept_id"`
	ItemDifficulty float64  `json:"item_difficulty"`
}

type startRequest struct {
	LearnerName string `json:"learner_name" binding:"required"`
	TopicID     uint   `json:"topic_id" binding:"required"`
}

// POST /sessions
func (s *Server) startSession(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	learner, err := s.repo.CreateOrGetLearner(ctx, req.LearnerName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create learner"})
		return
	}

	session, err := s.repo.SessionCreate(ctx, learner.ID, &req.TopicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	result, err := s.pipeline.RunTurn(ctx, learner.ID, req.TopicID, session.ID, nil, nil)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "item": nil, "reason": turnErrorReason(err)})
		return
	}
	if err := s.repo.SessionSetCurrent(ctx, session.ID, result.Item.ID, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not set current item"})
		return
	}

	token, err := auth.GenerateSessionToken(s.cfg.Server.JWTSecret, learner.ID, session.ID, &req.TopicID, sessionTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue session token"})
		return
	}
	_ = auth.SetActiveSession(ctx, s.rdb, learner.ID, session.ID, sessionTokenTTL)

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"token":      token,
		"item":       toItemView(result.Item),
	})
}

type submitRequest struct {
	AnswerGiven   string   `json:"answer_given" binding:"required"`
	ResponseTimeS *float64 `json:"response_time_s"`
}

// POST /sessions/:id/submit
func (s *Server) submitAnswer(c *gin.Context) {
	sessionID := c.Param("id")
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if session.CurrentItemID == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active item for this session"})
		return
	}

	item, err := s.repo.ItemByID(ctx, *session.CurrentItemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load current item"})
		return
	}

	var isCorrect, isClose bool
	var partial *float64
	var feedback string
	if item.Type == store.ItemProblem && s.llmG != nil {
		v := s.llmG.Grade(ctx, item, req.AnswerGiven)
		isCorrect, isClose, partial, feedback = v.IsCorrect, v.IsClose, v.PartialScore, v.Feedback
	} else {
		v := s.localG.Grade(item, req.AnswerGiven)
		isCorrect, isClose, partial, feedback = v.IsCorrect, v.IsClose, v.PartialScore, v.Feedback
	}

	currentSkill, err := s.repo.SkillGet(ctx, session.LearnerID, item.ConceptID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load skill state"})
		return
	}
	outcome := 0
	if isCorrect {
		outcome = 1
	}
	updated := s.skillEst.Update(*currentSkill, outcome, item.Difficulty, 0)

	analysis, err := s.pipeline.PolicyEngine().Analyze(ctx, session.LearnerID, s.pipeline.Config().RecentWindow)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not analyze recent history"})
		return
	}
	updated.Mastery = s.skillEst.Mastery(updated.Rating, analysis.PerConcept[item.ConceptID].Accuracy)

	answerGiven := req.AnswerGiven
	attempt := &store.Attempt{
		ItemID:        item.ID,
		LearnerID:     session.LearnerID,
		SessionID:     &sessionID,
		ConceptID:     item.ConceptID,
		AnswerGiven:   &answerGiven,
		IsCorrect:     isCorrect,
		PartialScore:  partial,
		ResponseTimeS: req.ResponseTimeS,
		RatingBefore:  currentSkill.Rating,
		RatingAfter:   updated.Rating,
		Timestamp:     time.Now().UTC(),
	}
	if _, err := s.repo.RecordAttempt(ctx, attempt, &updated); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "attempt not recorded"})
		return
	}

	result := turnOutcome{
		IsCorrect:      isCorrect,
		IsClose:        isClose,
		PartialScore:   partial,
		RatingBefore:   currentSkill.Rating,
		RatingAfter:    updated.Rating,
		Feedback:       feedback,
		ConceptID:      item.ConceptID,
		ItemDifficulty: item.Difficulty,
	}
	blob, err := json.Marshal(result)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode result"})
		return
	}
	if err := s.repo.SessionSetCurrent(ctx, sessionID, item.ID, string(blob)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update session"})
		return
	}

	if session.TopicID != nil && s.precache != nil {
		s.precache.TriggerAfterAttempt(ctx, session.LearnerID, *session.TopicID, sessionID, item.ConceptID, item.Difficulty)
	}

	c.JSON(http.StatusOK, gin.H{
		"is_correct":    result.IsCorrect,
		"is_close":      result.IsClose,
		"partial_score": result.PartialScore,
		"rating_before": result.RatingBefore,
		"rating_after":  result.RatingAfter,
		"feedback":      result.Feedback,
	})
}

// GET /sessions/:id/next
func (s *Server) nextItem(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if session.TopicID == nil {
		c.JSON(http.StatusOK, gin.H{"item": nil})
		return
	}

	var last turnOutcome
	if session.LastResultBlob == "" {
		// No submission yet this turn: the current item is still live.
		if session.CurrentItemID == nil {
			c.JSON(http.StatusOK, gin.H{"item": nil})
			return
		}
		item, err := s.repo.ItemByID(ctx, *session.CurrentItemID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load current item"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": toItemView(item)})
		return
	}
	if err := json.Unmarshal([]byte(session.LastResultBlob), &last); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode last result"})
		return
	}

	if s.precache != nil {
		if payload, ok, err := s.precache.Consume(ctx, session.LearnerID, sessionID, last.ConceptID, last.IsCorrect); err == nil && ok {
			if s.focusMatchesPrecache(ctx, session, last, payload.ConceptID) {
				item := &store.Item{
					ConceptID:         payload.ConceptID,
					Content:           payload.Content,
					Type:              payload.Type,
					Options:           store.NewStringList(payload.Options),
					CorrectAnswer:     payload.CorrectAnswer,
					Explanation:       payload.Explanation,
					Difficulty:        payload.Difficulty,
					EstimatedPCorrect: payload.EstimatedPCorrect,
					PromptUsed:        payload.PromptUsed,
					ModelUsed:         payload.ModelUsed,
				}
				id, err := s.repo.ItemInsert(ctx, item)
				if err == nil {
					item.ID = id
					_ = s.pipeline.DedupRegistry().RecordSeen(ctx, sessionID, item.Content)
					_ = s.repo.SessionSetCurrent(ctx, sessionID, item.ID, "")
					c.JSON(http.StatusOK, gin.H{"item": toItemView(item)})
					return
				}
			}
		}
	}

	result, err := s.pipeline.RunTurn(ctx, session.LearnerID, *session.TopicID, sessionID, &last.ConceptID, &last.ConceptID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"item": nil, "reason": turnErrorReason(err)})
		return
	}
	if err := s.repo.SessionSetCurrent(ctx, sessionID, result.Item.ID, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": toItemView(result.Item)})
}

// focusMatchesPrecache re-derives the learner's real current focus concept
// the same way the pre-cache branch predicted it and reports whether
// precacheConceptID still matches. A mismatch — the learner's actual recent
// history diverged from what the speculative branch simulated — must be
// treated as a miss, per Engine.Consume's contract.
func (s *Server) focusMatchesPrecache(ctx context.Context, session *store.Session, last turnOutcome, precacheConceptID uint) bool {
	if session.TopicID == nil {
		return false
	}
	policyEng := s.pipeline.PolicyEngine()
	analysis, err := policyEng.Analyze(ctx, session.LearnerID, s.pipeline.Config().RecentWindow)
	if err != nil {
		return false
	}
	focus, err := policyEng.SelectFocus(ctx, session.LearnerID, *session.TopicID, &last.ConceptID, &last.ConceptID, analysis)
	if err != nil || focus == nil {
		return false
	}
	return focus.ID == precacheConceptID
}

// POST /sessions/:id/precache — manual, idempotent trigger. A no-op (not
// an error) when no attempt has happened yet in this session.
func (s *Server) precacheTrigger(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	session, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if session.LastResultBlob == "" || session.TopicID == nil || s.precache == nil {
		c.JSON(http.StatusOK, gin.H{"triggered": false})
		return
	}
	var last turnOutcome
	if err := json.Unmarshal([]byte(session.LastResultBlob), &last); err != nil {
		c.JSON(http.StatusOK, gin.H{"triggered": false})
		return
	}
	s.precache.TriggerAfterAttempt(ctx, session.LearnerID, *session.TopicID, sessionID, last.ConceptID, last.ItemDifficulty)
	c.JSON(http.StatusAccepted, gin.H{"triggered": true})
}

// POST /sessions/:id/end
func (s *Server) endSession(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	session, err := s.repo.SessionEnd(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not end session"})
		return
	}
	_ = auth.DeleteActiveSession(ctx, s.rdb, session.LearnerID)

	c.JSON(http.StatusOK, gin.H{
		"total_attempts": session.TotalAttempts,
		"total_correct":  session.TotalCorrect,
		"started_at":     session.StartedAt,
		"ended_at":       session.EndedAt,
	})
}

func turnErrorReason(err error) string {
	switch {
	case errors.Is(err, generation.ErrNoFocusConcept):
		return "no_focus_concept"
	case errors.Is(err, generation.ErrNoItem):
		return "no_item_generated"
	default:
		return "generation_failed"
	}
}
