package app

import (
	"context"
	"database/sql"
	"time"

	"quizengine/internal/activity"
	"quizengine/internal/db"
	"quizengine/internal/exam"
	"quizengine/internal/grading"
	"quizengine/internal/policy"
	"quizengine/internal/question"
	"quizengine/internal/regrade"
	"quizengine/internal/report"
	"quizengine/internal/sandbox"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const regradeJobTTL = 7 * 24 * time.Hour

// Deps holds the connections and services shared by the web and worker
// binaries.
type Deps struct {
	DB    *sql.DB
	Redis *redis.Client

	Exam       *exam.Service
	Reports    *report.Service
	Aggregator *regrade.Aggregator
	Jobs       regrade.JobQueue
}

func OpenDeps(ctx context.Context, cfg Config, log *zap.Logger) (*Deps, error) {
	conn, err := db.OpenPostgres(ctx, db.PostgresConfig{
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
		Migrate:         cfg.DBMigrate,
	})
	if err != nil {
		return nil, err
	}

	rdb, err := db.OpenRedis(ctx, db.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	store := exam.NewPostgresStore(conn)
	bank := question.NewPostgresBank(conn)
	engine := grading.NewEngine(sandbox.NewRedisQueue(rdb, cfg.SandboxResultTTL))
	events := activity.NewPostgresSink(conn, log)
	reports := report.NewService(store, report.NewPostgresGrades(conn), log)

	svc := exam.NewService(store, bank, engine,
		exam.WithPolicy(policy.NewSQLChecker(conn)),
		exam.WithEvents(events),
		exam.WithGradeRefresher(reports),
		exam.WithLogger(log),
	)
	agg := regrade.NewAggregator(store, bank, engine,
		regrade.WithConcurrency(cfg.RegradeConcurrency),
		regrade.WithCodeWait(cfg.RegradeCodeWait, 500*time.Millisecond),
		regrade.WithLogger(log),
		regrade.WithEvents(events),
		regrade.WithGradeRefresher(reports),
	)

	return &Deps{
		DB:         conn,
		Redis:      rdb,
		Exam:       svc,
		Reports:    reports,
		Aggregator: agg,
		Jobs:       regrade.NewRedisJobQueue(rdb, regradeJobTTL),
	}, nil
}

func (d *Deps) Close() {
	_ = d.Redis.Close()
	_ = d.DB.Close()
}
