package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/faultline/faultline/internal/authz"
	jobmetrics "github.com/faultline/faultline/internal/jobs"
	"github.com/faultline/faultline/internal/projects"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuthzWarmupJob pre-populates authorization cache entries for a team's
// members: every (member, capability) pair in team scope plus in the
// scope of each app the team owns. Run it ahead of traffic spikes or
// after a bulk invalidation so listing pages do not pay a resolver round
// trip per rendered control.
type AuthzWarmupJob struct {
	Resolver    *authz.CachedResolver
	Memberships interface {
		TeamMembers(ctx context.Context, teamID int64) ([]authz.Membership, error)
	}
	Projects interface {
		TeamApps(ctx context.Context, teamID int64) ([]int64, error)
	}
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuthzWarmupJob wires dependencies for the warmup handler.
func NewAuthzWarmupJob(resolver *authz.CachedResolver, memberships *authz.Repository, projectsRepo *projects.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuthzWarmupJob {
	return &AuthzWarmupJob{
		Resolver:    resolver,
		Memberships: memberships,
		Projects:    projectsRepo,
		Logger:      logger,
		Metrics:     metrics,
	}
}

// Handle processes authz warmup tasks.
func (j *AuthzWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Resolver == nil {
		return errors.New("authz warmup: handler not configured")
	}
	var payload AuthzWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TeamID == 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuthzWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("team_id", payload.TeamID))
	start := time.Now()

	capabilities := payload.Capabilities
	if len(capabilities) == 0 {
		for _, cap := range j.Resolver.Registry().Capabilities() {
			capabilities = append(capabilities, cap.Key)
		}
	}

	members, err := j.Memberships.TeamMembers(ctx, payload.TeamID)
	if err != nil {
		resultErr = err
		logger.Error("load team members", slog.Any("error", err))
		return resultErr
	}
	if len(members) == 0 {
		logger.Info("no members to warm")
		return resultErr
	}

	scopes := []authz.Scope{authz.TeamScope(payload.TeamID)}
	appIDs, err := j.Projects.TeamApps(ctx, payload.TeamID)
	if err != nil {
		resultErr = err
		logger.Error("load team apps", slog.Any("error", err))
		return resultErr
	}
	for _, appID := range appIDs {
		scopes = append(scopes, authz.RecordScope(authz.RecordRef{
			Type:    "app",
			ID:      appID,
			TeamIDs: []int64{payload.TeamID},
		}))
	}

	warmed := 0
	for _, member := range members {
		actor := &authz.Actor{ID: member.ActorID}
		if err := j.Resolver.Warm(ctx, actor, capabilities, scopes); err != nil {
			resultErr = err
			logger.Error("warm member", slog.Int64("actor_id", member.ActorID), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed authz warmup",
		slog.Int("members", warmed),
		slog.Int("capabilities", len(capabilities)),
		slog.Int("scopes", len(scopes)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *AuthzWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuthzWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
