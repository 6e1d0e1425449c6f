package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/mail"
	"storefront/internal/infra/metrics"
	infraPayment "storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/token"
	"storefront/internal/server"
	"storefront/internal/usecase"
	auth "storefront/internal/usecase/auth_usecase"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	//設定（.env → 環境変数）
	cfg, err := config.Load(".env", "../.env")
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg.DSN(), !cfg.IsProd())
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	//redis（checkoutロック）
	rdb, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer rdb.Close()

	//stripe
	stripe.Key = cfg.StripeSecretKey

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	itemRepo := infraRepo.NewItemGormRepository(gormDB)
	cartItemRepo := infraRepo.NewCartItemGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	attemptRepo := infraRepo.NewCheckoutAttemptGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}
	jwtSvc := token.NewJWT(cfg.JWTSecret, cfg.TokenTTL)
	gateway := infraPayment.NewStripeGateway()
	checkoutMetrics := metrics.NewCheckoutMetrics()
	mailer := mail.NewResetMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, cfg.FEURL)

	//bcrypt（会員登録：Hash / ログイン：Verify）
	hasher := auth.NewBcryptPasswordHasher(12)
	verifier := auth.NewBcryptPasswordVerifier()

	//Usecase生成
	authCtx := usecase.NewAuthContext(jwtSvc, userRepo)
	authUC := auth.NewAuthUsecase(userRepo, hasher, verifier, jwtSvc, mailer, clock, cfg.ResetTokenTTL, logger)
	userUC := usecase.NewUserUsecase(userRepo, txm, clock)
	itemUC := usecase.NewItemUsecase(itemRepo, txm, clock)
	cartUC := usecase.NewCartUsecase(cartItemRepo, itemRepo)
	orderUC := usecase.NewOrderUsecase(orderRepo, orderItemRepo)
	locker := cache.NewRedisLocker(rdb, "storefront:lock:")
	checkoutUC := usecase.NewCheckoutUsecase(usecase.CheckoutDeps{
		Tx:         txm,
		CartItems:  cartItemRepo,
		Attempts:   attemptRepo,
		Orders:     orderRepo,
		OrderItems: orderItemRepo,
		Gateway:    gateway,
		Locker:     locker,
		Metrics:    checkoutMetrics,
		Logger:     logger,
		Clock:      clock,
		IDGen:      idGen,
	}, usecase.CheckoutConfig{
		Currency:       cfg.Currency,
		PaymentTimeout: cfg.PaymentTimeout,
		LockTTL:        cfg.CheckoutLockTTL,
	})
	adminCheckoutUC := usecase.NewAdminCheckoutUsecase(attemptRepo, txm, gateway, locker, cfg.CheckoutLockTTL, clock, logger)
	auditUC := usecase.NewAuditUsecase(auditRepo)

	//Handler生成
	e := server.New(logger, authCtx, server.Handlers{
		Auth:          handler.NewAuthHandler(authUC, userUC, cfg.CookieSecure),
		Items:         handler.NewItemHandler(itemUC),
		Cart:          handler.NewCartHandler(cartUC),
		Checkout:      handler.NewCheckoutHandler(checkoutUC),
		Orders:        handler.NewOrderHandler(orderUC),
		Users:         handler.NewUserHandler(userUC),
		AdminCheckout: handler.NewAdminCheckoutHandler(adminCheckoutUC),
		AdminAudit:    handler.NewAdminAuditHandler(auditUC),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": handler.PingFunc(sqlDB.PingContext),
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		}),
		Metrics: checkoutMetrics.Handler(),
	})

	//Server起動
	return server.Start(ctx, e, cfg.Addr(), logger)
}
