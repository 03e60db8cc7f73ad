package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/config"
	"github.com/Leganyst/clinic-scheduling/internal/db"
	"github.com/Leganyst/clinic-scheduling/internal/logger"
	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
	"github.com/Leganyst/clinic-scheduling/internal/service"
	"github.com/Leganyst/clinic-scheduling/internal/transport/httpapi"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinic-scheduling",
		Short:         "Clinic appointment scheduling core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap загружает конфиг, логгер и открывает БД с миграциями.
func bootstrap() (*config.Config, zerolog.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.App.LogLevel, cfg.IsDev())

	gormDB, err := db.NewGormDB(&cfg.DB)
	if err != nil {
		return nil, log, nil, fmt.Errorf("init db: %w", err)
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		return nil, log, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return cfg, log, gormDB, nil
}

func closeDB(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, gormDB, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeDB(gormDB)
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}

// slotsCmd печатает проекцию доступности провайдера на дату.
func slotsCmd() *cobra.Command {
	var (
		providerRaw string
		dateRaw     string
		freeOnly    bool
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print slot availability of a provider for a clinic date",
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, err := uuid.Parse(providerRaw)
			if err != nil {
				return fmt.Errorf("invalid --provider: %w", err)
			}

			cfg, log, gormDB, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeDB(gormDB)

			loc := cfg.Location()
			date := time.Now().In(loc)
			if dateRaw != "" {
				if date, err = calendar.ParseDate(dateRaw, loc); err != nil {
					return err
				}
			}

			availability := service.NewAvailabilityService(
				repository.NewGormScheduleRepository(gormDB),
				repository.NewGormAppointmentRepository(gormDB),
				service.AvailabilityOptions{Location: loc, Mode: cfg.MatchMode()},
				log,
			)
			p, err := availability.Availability(cmd.Context(), providerID, date)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  mode=%s\n", p.Key, p.Mode)
			for _, s := range p.Slots {
				if freeOnly && !s.Available {
					continue
				}
				state := "free"
				if !s.Available {
					state = "taken"
				}
				fmt.Fprintf(out, "%s-%s  %s\n", s.Time, calendar.ClockOf(s.End.In(loc)), state)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&providerRaw, "provider", "", "provider id (uuid)")
	cmd.Flags().StringVar(&dateRaw, "date", "", "clinic date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&freeOnly, "free", false, "print only available slots")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

// tokenCmd выпускает токен для ручных запросов к API.
func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Auth.SigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}

			r, err := service.ParseRole(role)
			if err != nil {
				return err
			}
			id := httpapi.DevActorID
			if subject != "" {
				if id, err = uuid.Parse(subject); err != nil {
					return fmt.Errorf("invalid --subject: %w", err)
				}
			}

			tok, err := httpapi.IssueToken([]byte(cfg.Auth.SigningKey), cfg.Auth.Issuer, service.Actor{ID: id, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "user id (uuid)")
	cmd.Flags().StringVar(&role, "role", string(service.RoleAdmin), "patient | provider | staff | admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
