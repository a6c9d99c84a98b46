package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Barahlush/housekeeper-tg-bot/internal/bot"
	"github.com/Barahlush/housekeeper-tg-bot/internal/config"
	"github.com/Barahlush/housekeeper-tg-bot/internal/flavor"
	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
	"github.com/Barahlush/housekeeper-tg-bot/internal/server"
	"github.com/Barahlush/housekeeper-tg-bot/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "housekeeper",
		Short: "Telegram bot that shares household chores between chat members",
		Long: `Housekeeper turns chat messages into tasks and offers each task to a
member of the chat, preferring members who have done fewer tasks so far.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, configFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (yaml)")
	flags.String("env", config.EnvLocal, "environment: local, dev or prod")
	flags.String("log-level", "", "log level, overrides the environment default")
	flags.String("db-driver", repository.DriverSQLite, "database driver: sqlite or postgres")
	flags.String("db-dsn", config.DefaultSQLitePath, "database file or connection string")
	flags.String("http-addr", "", "status API address, disabled when empty")
	_ = v.BindPFlag("env", flags.Lookup("env"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("database.driver", flags.Lookup("db-driver"))
	_ = v.BindPFlag("database.dsn", flags.Lookup("db-dsn"))
	_ = v.BindPFlag("http.addr", flags.Lookup("http-addr"))

	return cmd
}

func run(parent context.Context, v *viper.Viper, configFile string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return err
	}

	log := setupLogger(cfg.Env, cfg.Log.Level)
	log.WithFields(logrus.Fields{"env": cfg.Env, "db": cfg.Database.Driver}).Info("housekeeper starting")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("open database")
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql db: %w", err)
	}
	defer sqlDB.Close()

	store := repository.NewStore(db)
	taskSvc := service.NewTaskService(store, service.NewRandomSelector(), service.AllowMembers, log)
	memberSvc := service.NewMemberService(store, log)
	digestSvc := service.NewDigestService(store)

	var fl bot.Flavor = flavor.Nop{}
	if cfg.Flavor.Enabled {
		fl = flavor.New(cfg.Flavor, log)
	}

	telegramBot, err := bot.New(cfg.Telegram, bot.Services{
		Tasks:   taskSvc,
		Members: memberSvc,
		Digest:  digestSvc,
		Flavor:  fl,
	}, log)
	if err != nil {
		log.WithError(err).Error("start bot")
		return err
	}

	scheduler := service.NewSchedulerService(time.Local, log)
	_, err = scheduler.ScheduleDigest(cfg.Digest, telegramBot.SendDigests)
	switch {
	case errors.Is(err, service.ErrNoSchedule):
		log.Debug("digest disabled")
	case err != nil:
		log.WithError(err).Error("schedule digest")
		return err
	default:
		scheduler.Start()
		defer scheduler.Stop()
	}

	if cfg.HTTP.Addr != "" {
		router := server.NewRouter(cfg.Env, log,
			server.NewHealthHandler(sqlDB.PingContext),
			server.NewTasksHandler(taskSvc, log),
			server.NewMembersHandler(memberSvc, log),
		)
		srv := server.New(cfg.HTTP.Addr, router, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.WithError(err).Error("status api stopped")
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.WithError(err).Warn("status api shutdown")
			}
		}()
	}

	log.Info("housekeeper bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("bot stopped with error")
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func setupLogger(env, level string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	switch env {
	case config.EnvLocal:
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
		log.SetLevel(logrus.DebugLevel)
	case config.EnvDev:
		log.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.WarnLevel)
	}

	if level != "" {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			log.SetLevel(lvl)
		} else {
			log.WithError(err).Warn("unknown log level, keeping default")
		}
	}

	return logrus.NewEntry(log)
}
