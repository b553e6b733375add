package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/learnpath/academy-hub/internal/application/workspace"
	"github.com/learnpath/academy-hub/internal/domain/progress"
	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/internal/infrastructure/kv"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD COMMISSION COMMAND
// Adds affiliate earnings to a learner's running total and checks the
// commission milestones.
// ══════════════════════════════════════════════════════════════════════════════

// RecordCommissionCommand credits AmountCents to a learner.
type RecordCommissionCommand struct {
	LearnerID   string
	AmountCents int64
}

// Validate validates the command.
func (c RecordCommissionCommand) Validate() error {
	if _, err := shared.NewLearnerID(c.LearnerID); err != nil {
		return err
	}
	if c.AmountCents <= 0 {
		return shared.WrapError("progress", "RecordCommission", shared.ErrValueOutOfRange, "amount must be positive", fmt.Errorf("%d", c.AmountCents))
	}
	return nil
}

// RecordCommissionResult describes the outcome.
type RecordCommissionResult struct {
	LearnerID     string                `json:"learnerId"`
	PreviousCents int64                 `json:"previousCents"`
	TotalCents    int64                 `json:"totalCents"`
	Achievement   *progress.Achievement `json:"achievement,omitempty"`
}

// RecordCommissionHandler handles RecordCommissionCommand.
type RecordCommissionHandler struct {
	workspaces *workspace.Factory
	publisher  shared.EventPublisher
	logger     *logger.Logger
}

// NewRecordCommissionHandler creates a new RecordCommissionHandler.
func NewRecordCommissionHandler(workspaces *workspace.Factory, publisher shared.EventPublisher, log *logger.Logger) *RecordCommissionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RecordCommissionHandler{
		workspaces: workspaces,
		publisher:  publisher,
		logger:     log.With(logger.Component("record_commission")),
	}
}

// Handle executes the command.
func (h *RecordCommissionHandler) Handle(ctx context.Context, cmd RecordCommissionCommand) (*RecordCommissionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_commission: %w", err)
	}
	ws, err := h.workspaces.For(cmd.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("record_commission: %w", err)
	}

	unlock := h.workspaces.Lock(cmd.LearnerID)
	defer unlock()

	previous, err := loadCents(ctx, ws.Store)
	if err != nil {
		return nil, fmt.Errorf("record_commission: %w", err)
	}
	total := previous + cmd.AmountCents
	if err := ws.Store.Set(ctx, kv.KeyCommissionEarnings, strconv.FormatInt(total, 10)); err != nil {
		return nil, fmt.Errorf("record_commission: save: %w", err)
	}

	result := &RecordCommissionResult{LearnerID: cmd.LearnerID, PreviousCents: previous, TotalCents: total}

	a, err := ws.Achievements.CheckCommissionMilestone(ctx, previous, total)
	if err != nil {
		h.logger.Warn("commission milestone check failed", logger.LearnerID(cmd.LearnerID), logger.Err(err))
		return result, nil
	}
	if a != nil {
		result.Achievement = a
		publishAchievement(ctx, h.publisher, h.logger, cmd.LearnerID, a)
	}
	return result, nil
}

func loadCents(ctx context.Context, store kv.Store) (int64, error) {
	raw, ok, err := store.Get(ctx, kv.KeyCommissionEarnings)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, shared.WrapError("progress", "RecordCommission", shared.ErrInvalidFormat, "stored earnings are corrupt", err)
	}
	return n, nil
}

// publishAchievement emits AchievementUnlockedEvent, logging failures.
func publishAchievement(ctx context.Context, publisher shared.EventPublisher, log *logger.Logger, learnerID string, a *progress.Achievement) {
	if publisher == nil || a == nil {
		return
	}
	event := shared.NewAchievementUnlockedEvent(learnerID, a.ID, string(a.Kind), a.Title, a.Timestamp)
	if err := publisher.Publish(ctx, event); err != nil {
		log.Warn("failed to publish achievement", logger.LearnerID(learnerID), logger.Err(err))
	}
}
