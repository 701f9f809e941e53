package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"store-management/internal/config"
	"store-management/internal/domain/model"
	"store-management/internal/handler"
	"store-management/internal/infra/cache"
	"store-management/internal/infra/db"
	infraRepo "store-management/internal/infra/repository"
	"store-management/internal/infra/token"
	"store-management/internal/middleware"
	repo "store-management/internal/repository"
	"store-management/internal/server"
	"store-management/internal/telemetry"
	"store-management/internal/usecase"
	auth "store-management/internal/usecase/auth_usecase"

	"github.com/joho/godotenv"
)

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	//.envは任意
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			tel.Logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()
	logger := tel.Logger

	//シードユーザー（ADMIN / MANAGER / EMPLOYEE）
	hasher := auth.NewBcryptPasswordHasher(cfg.BcryptCost)
	users, err := seedUsers(hasher, cfg)
	if err != nil {
		return err
	}

	//ストア生成
	products, txm, userRepo, err := newStores(ctx, cfg, logger, users)
	if err != nil {
		return err
	}

	clock := &realClock{}

	//JWT
	jwt := token.NewJWT(cfg.JWTSecret, cfg.AccessTokenTTL)

	//Usecase生成
	productUC := usecase.NewProductUsecase(
		products,
		txm,
		cache.NewProductLRU(cfg.CacheSize, cfg.CacheTTL),
		clock,
		logger,
		tel.Tracer(),
		tel.Meter(),
	)
	loginUC := auth.NewLoginUsecase(userRepo, auth.NewBcryptPasswordVerifier(), jwt, clock)

	//Handler生成
	productH := handler.NewProductHandler(productUC)
	authH := handler.NewAuthHandler(loginUC)

	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	srv := server.New(addr, productH, authH, middleware.Authenticate(loginUC, jwt), tel)

	//Server起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newStores(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	users []model.User,
) (repo.ProductRepository, repo.TransactionManager, repo.UserRepository, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory stores")
		mem := infraRepo.NewProductMemoryRepository()
		return mem, infraRepo.NewTxManagerMemory(mem), infraRepo.NewUserMemoryRepository(users...), nil
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return nil, nil, nil, err
	}

	userRepo := infraRepo.NewUserGormRepository(gormDB)
	if err := userRepo.Seed(ctx, users...); err != nil {
		return nil, nil, nil, err
	}

	return infraRepo.NewProductGormRepository(gormDB), infraRepo.NewTxManagerGorm(gormDB), userRepo, nil
}

func seedUsers(hasher auth.PasswordHasher, cfg config.Config) ([]model.User, error) {
	seeds := []struct {
		username string
		password string
		role     model.Role
	}{
		{"admin", cfg.AdminPassword, model.RoleAdmin},
		{"manager", cfg.ManagerPassword, model.RoleManager},
		{"employee", cfg.EmployeePassword, model.RoleEmployee},
	}

	users := make([]model.User, 0, len(seeds))
	for _, s := range seeds {
		u, err := auth.SeedUser(hasher, s.username, s.password, s.role)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
