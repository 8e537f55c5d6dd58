package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"academtrack_go/database"
	"academtrack_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const activityLogQueue = "logs:queue"

// LogMaintenanceService flushes Redis-cached activity logs into the
// database and prunes old rows. Only active when both Redis and the
// remote store are configured.
type LogMaintenanceService struct {
	redisClient *redis.Client
}

func NewLogMaintenanceService() *LogMaintenanceService {
	return &LogMaintenanceService{
		redisClient: database.GetRedisClient(),
	}
}

// FlushCachedLogsToDatabase moves queued logs from Redis into the database.
func (lms *LogMaintenanceService) FlushCachedLogsToDatabase() error {
	if lms.redisClient == nil {
		return fmt.Errorf("redis client not available")
	}
	if database.DB == nil {
		return fmt.Errorf("database not available")
	}

	ctx := context.Background()
	cutoffTime := time.Now().Add(-24 * time.Hour)

	queued, err := lms.redisClient.ZRangeByScore(ctx, activityLogQueue, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", cutoffTime.Unix()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read log queue: %v", err)
	}

	var processedCount int
	var errorCount int

	for _, logKey := range queued {
		logData, err := lms.redisClient.Get(ctx, logKey).Result()
		if err != nil {
			if err != redis.Nil {
				logrus.WithError(err).Errorf("Failed to get log data for key: %s", logKey)
				errorCount++
			}
			// Expired entries just leave a stale queue member behind.
			lms.redisClient.ZRem(ctx, activityLogQueue, logKey)
			continue
		}

		var activityLog models.ActivityLog
		if err := json.Unmarshal([]byte(logData), &activityLog); err != nil {
			logrus.WithError(err).Errorf("Failed to unmarshal log data for key: %s", logKey)
			errorCount++
			continue
		}

		if err := database.DB.Create(&activityLog).Error; err != nil {
			logrus.WithError(err).Error("Failed to save log to database")
			errorCount++
			continue
		}

		pipeline := lms.redisClient.Pipeline()
		pipeline.Del(ctx, logKey)
		pipeline.ZRem(ctx, activityLogQueue, logKey)
		if _, err := pipeline.Exec(ctx); err != nil {
			logrus.WithError(err).Errorf("Failed to remove log from cache: %s", logKey)
		}

		processedCount++
	}

	if processedCount > 0 || errorCount > 0 {
		logrus.Infof("Flushed %d logs to database, %d errors", processedCount, errorCount)
	}
	return nil
}

// PruneOldLogs deletes activity logs older than the given age.
func (lms *LogMaintenanceService) PruneOldLogs(daysOld int) error {
	if daysOld < 7 {
		return fmt.Errorf("minimum prune age is 7 days for safety")
	}
	if database.DB == nil {
		return fmt.Errorf("database not available")
	}

	cutoffDate := time.Now().AddDate(0, 0, -daysOld)
	result := database.DB.Where("created_at < ?", cutoffDate).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return fmt.Errorf("failed to prune old logs: %v", result.Error)
	}
	if result.RowsAffected > 0 {
		logrus.Infof("Pruned %d activity logs older than %s", result.RowsAffected, cutoffDate.Format("2006-01-02"))
	}
	return nil
}

// Schedule registers the maintenance jobs: hourly flush, daily prune of
// logs older than 90 days.
func (lms *LogMaintenanceService) Schedule(c *cron.Cron) error {
	if _, err := c.AddFunc("@hourly", func() {
		if err := lms.FlushCachedLogsToDatabase(); err != nil {
			logrus.WithError(err).Warn("Scheduled log flush failed")
		}
	}); err != nil {
		return err
	}
	if _, err := c.AddFunc("@daily", func() {
		if err := lms.PruneOldLogs(90); err != nil {
			logrus.WithError(err).Warn("Scheduled log prune failed")
		}
	}); err != nil {
		return err
	}
	return nil
}
