package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callbell/config"
	"callbell/internal/board"
	"callbell/internal/commands"
	"callbell/internal/db"
	"callbell/internal/health"
	"callbell/internal/images"
	"callbell/internal/logs"
	"callbell/internal/middleware"
	"callbell/internal/mqtt"
	"callbell/internal/notify"
	"callbell/internal/repo"
	"callbell/internal/web"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db     *gorm.DB
	hub    *notify.Hub
	pub    *mqtt.Publisher
	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) Хранилище: БД, если задан драйвер, иначе память (+ data.json)
	var store repo.Store
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		if err := db.Migrate(d); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		a.db = d
		store = repo.NewSQLStore(d)
		logs.Logger.Infof("storage: %s", drv)
	} else {
		ms, err := repo.NewMemoryStore(afero.NewOsFs(), a.cfg.Storage.DataFile)
		if err != nil {
			return fmt.Errorf("memory store: %w", err)
		}
		store = ms
		if a.cfg.Storage.DataFile != "" {
			logs.Logger.Infof("storage: memory, snapshot %s", a.cfg.Storage.DataFile)
		} else {
			logs.Logger.Info("storage: memory only")
		}
	}

	img, err := images.NewStore(afero.NewOsFs(), a.cfg.Storage.UploadDir, a.cfg.Storage.MaxUploadBytes)
	if err != nil {
		return err
	}

	// 3) Уведомления и сервис
	a.hub = notify.NewHub(a.cfg.Notify.MailboxSize)
	svc := board.NewService(store, a.hub, commands.NewMailbox(), board.Options{
		Reasons:     a.cfg.Board.Reasons,
		OtherReason: a.cfg.Board.OtherReason,
	})

	// MQTT опционален: без брокера устройства опрашивают /command/{id}
	if a.cfg.MQTT.Broker != "" {
		client, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   a.cfg.MQTT.Broker,
			ClientID: a.cfg.MQTT.ClientID,
			Username: a.cfg.MQTT.Username,
			Password: a.cfg.MQTT.Password,
		})
		if err != nil {
			logs.Logger.Warnf("mqtt disabled: %v", err)
		} else {
			a.pub = mqtt.NewPublisher(client, a.cfg.MQTT.CommandTopic)
			svc.SetPublisher(a.pub)
		}
	}

	// 4) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db) // /healthz и /readyz
	} else {
		health.RegisterRoutes(a.Router)
	}
	a.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	notify.NewHTTP(a.hub, a.cfg.Notify.KeepAlive).RegisterRoutes(a.Router)
	web.NewHTTP(svc, img, a.cfg.Storage.MaxUploadBytes).RegisterRoutes(a.Router)

	_ = a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second, // SSE снимает дедлайн сам
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			a.cancel()
		}
	}()

	<-a.ctx.Done()
	a.Close()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close закрывает потоки событий, HTTP-сервер, MQTT и БД.
func (a *App) Close() {
	// сначала hub: SSE/ws-обработчики завершатся, и Shutdown не будет их ждать
	if a.hub != nil {
		a.hub.Close()
	}
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.httpServer.Shutdown(ctx)
	}
	if a.pub != nil {
		a.pub.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
