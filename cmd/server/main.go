package main

import (
	"context"
	"encoding/hex"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ticket_ledger/internal/canonical"
	"ticket_ledger/internal/config"
	"ticket_ledger/internal/cryptographic/signature"
	"ticket_ledger/internal/ledger"
	"ticket_ledger/internal/repository/message"
	"ticket_ledger/internal/repository/party"
	redisSvc "ticket_ledger/internal/service/redis"
	"ticket_ledger/internal/service/server"
	"ticket_ledger/internal/utils/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := log.Init(cfg.LogLevel, cfg.IsDevelopment()); err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoDBClient, err := initMongo(cfg.MongoURI)
	if err != nil {
		log.Fatal("connect mongo failed", zap.Error(err))
	}
	defer mongoDBClient.Disconnect(context.Background())

	db := mongoDBClient.Database(cfg.MongoDB)
	messageRepo := message.NewMessageRepo(db)
	partyRepo := party.NewPartyRepo(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	redis := redisSvc.NewRedis(rdb)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return messageRepo.EnsureIndexes(gctx) })
	g.Go(func() error { return partyRepo.EnsureIndexes(gctx) })
	g.Go(func() error { return redis.Ping(gctx) })
	if err := g.Wait(); err != nil {
		log.Fatal("prepare stores failed", zap.Error(err))
	}

	hub := server.NewHub(redisSvc.NewInbox(redis))
	opts := []ledger.Option{
		ledger.WithCommitmentCache(redisSvc.NewCommitmentCache(redis, cfg.CommitmentTTL)),
		ledger.WithNotifier(hub),
	}
	if len(cfg.SigningSeed) > 0 {
		signer, err := signature.NewSignerFromSeed(cfg.SigningSeed)
		if err != nil {
			log.Fatal("load signing key failed", zap.Error(err))
		}
		log.Info("signing commitments", zap.String("signerKey", hex.EncodeToString(signer.PublicKey())))
		opts = append(opts, ledger.WithSigner(signer))
	}

	svc := ledger.NewService(messageRepo, opts...)
	s := server.NewHttpServer(cfg.Addr, svc, partyRepo, canonical.NewJSONEncoder(), hub)
	if err := s.Run(ctx); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("server stopped")
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
