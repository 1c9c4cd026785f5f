package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"CardRoom/config"
	"CardRoom/internal/auth"
	"CardRoom/internal/game/bot"
	"CardRoom/internal/game/manager"
	"CardRoom/internal/ledger"
	"CardRoom/internal/lobby"
	"CardRoom/internal/middleware"
	"CardRoom/internal/storage"
	"CardRoom/internal/utils"
	"CardRoom/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the table server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	c := config.C

	//-------------------------------------------------------
	// 1. 账本：SQL 库 + 异步写入
	//-------------------------------------------------------
	if err := storage.InitDatabase(c.Database.Driver, c.Database.DSN); err != nil {
		return err
	}
	store := ledger.NewSQLStore(storage.DB, c.Database.Driver)
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	rec := ledger.NewRecorder(store, c.Game.LedgerQueue)

	//-------------------------------------------------------
	// 2. Redis（可选）：大厅目录与登录 nonce
	//-------------------------------------------------------
	lobbyRepo := lobby.NewMemoryRepo()
	nonces := auth.NewMemoryNonceStore()
	if c.Redis.Addr != "" {
		if err := storage.InitRedis(c.Redis.Addr, c.Redis.Password, c.Redis.DB); err != nil {
			return err
		}
		defer storage.CloseRedis()
		lobbyRepo = lobby.NewRedisRepo(storage.Rdb)
		nonces = auth.NewRedisNonceStore(storage.Rdb)
	} else {
		utils.Log.Warn("redis not configured, lobby and nonces kept in memory")
	}

	//-------------------------------------------------------
	// 3. Hub + GameManager + 牌桌
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run()

	gameMgr := manager.NewGameManager(hub, rec, bot.NewRegistry(c.Bots), c.Game.Timing())
	hub.OnIncoming = gameMgr.HandlePlayerMessage
	for _, t := range c.Tables {
		if _, err := gameMgr.AddTable(t.Engine()); err != nil {
			return err
		}
	}

	lobbySvc := lobby.NewService(lobbyRepo, gameMgr, int(3*c.Game.LobbySync.Seconds())+1)
	gameMgr.SetLobby(lobbySvc)
	syncCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	go lobbySvc.Run(syncCtx, c.Game.LobbySync)

	//-------------------------------------------------------
	// 4. Gin + CORS + 路由
	//-------------------------------------------------------
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Count()})
	})

	authH := auth.NewHandler(nonces, store, auth.Options{
		Secret:          []byte(c.JWT.Secret),
		TTL:             c.JWT.TTL,
		StartingBalance: c.Game.StartingBalance,
	})
	authGroup := r.Group("/auth")
	{
		authGroup.GET("/nonce", authH.Nonce)
		authGroup.POST("/nonce", authH.Nonce)
		authGroup.POST("/login", authH.Login)
	}

	lh := lobby.NewHandler(lobbySvc)
	r.GET("/tables", lh.List)
	r.GET("/tables/:id", lh.Get)
	r.GET("/tables/:id/state", func(ctx *gin.Context) {
		eng, ok := gameMgr.Table(ctx.Param("id"))
		if !ok {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
			return
		}
		// 未登录只给旁观视角
		view, err := eng.State(ctx.Request.Context(), "")
		if err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, view)
	})

	secured := r.Group("/", middleware.JwtAuthMiddleware([]byte(c.JWT.Secret)))
	{
		secured.GET("/ws", websocket.ServeWS(hub))
		secured.GET("/me", authH.Me)
		secured.GET("/me/table", lh.Mine)
	}

	//-------------------------------------------------------
	// 5. 启动服务器，收到信号后优雅退出
	//-------------------------------------------------------
	srv := &http.Server{Addr: c.Server.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		utils.Log.Info("Server running", "addr", c.Server.Port, "tables", len(c.Tables), "driver", c.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		utils.Log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Log.Warn("http shutdown", "err", err)
	}
	// 先退还进行中的手牌并兑出筹码，再关连接、写完账本
	if err := gameMgr.Shutdown(shutdownCtx); err != nil {
		utils.Log.Warn("table shutdown", "err", err)
	}
	hub.Close()
	rec.Close()
	return nil
}
