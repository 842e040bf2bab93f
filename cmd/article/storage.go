package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/osmbc/articles/internal/article"
	"github.com/osmbc/articles/internal/article/repository"
	"github.com/osmbc/articles/internal/blog"
	"github.com/osmbc/articles/internal/changes"
	"github.com/osmbc/articles/internal/config"
	"github.com/osmbc/articles/internal/database"
	"github.com/osmbc/articles/internal/users"
	"github.com/osmbc/articles/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

const mongoConnectAttempts = 5

// backend bundles the stores of one storage driver.
type backend struct {
	articles article.Store
	changes  changes.Log
	blogs    blog.Finder
	users    users.UserRepository
	ping     func(ctx context.Context) error
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Storage.Driver {
	case "mongo":
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoConnectAttempts)
		if err != nil {
			return nil, err
		}
		return mongoBackend(client, cfg.MongoDB.Database), nil
	case "postgres":
		db, err := database.OpenPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b, err := postgresBackend(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return b, nil
	default:
		logger.Warnf("using in-memory storage; data is lost on restart")
		return &backend{
			articles: repository.NewMemoryRepo(),
			changes:  changes.NewMemoryLog(),
			blogs:    blog.NewMemoryRepo(),
			users:    users.NewMemoryUserRepository(),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}
}

func mongoBackend(client *mongo.Client, dbName string) *backend {
	db := client.Database(dbName)
	return &backend{
		articles: repository.NewMongoRepo(db),
		changes:  changes.NewMongoLog(db.Collection("changes")),
		blogs:    blog.NewMongoRepo(db.Collection("blog")),
		users:    users.NewMongoUserRepository(db.Collection("users")),
		ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
		close:    func() { _ = client.Disconnect(context.Background()) },
	}
}

func postgresBackend(ctx context.Context, db *sql.DB) (*backend, error) {
	articles := repository.NewPostgresRepo(db)
	log := changes.NewPostgresLog(db)
	blogs := blog.NewPostgresRepo(db)
	for name, ensure := range map[string]func(context.Context) error{
		"article": articles.EnsureSchema,
		"changes": log.EnsureSchema,
		"blog":    blogs.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			return nil, fmt.Errorf("ensure %s schema: %w", name, err)
		}
	}
	return &backend{
		articles: articles,
		changes:  log,
		blogs:    blogs,
		// user records follow the identity provider and are rebuilt on login
		users: users.NewMemoryUserRepository(),
		ping:  db.PingContext,
		close: func() { _ = db.Close() },
	}, nil
}
