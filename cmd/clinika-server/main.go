package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinika/clinika/internal/config"
	"github.com/clinika/clinika/internal/domain/anvisareport"
	"github.com/clinika/clinika/internal/domain/consultation"
	"github.com/clinika/clinika/internal/domain/doctor"
	"github.com/clinika/clinika/internal/domain/identity"
	"github.com/clinika/clinika/internal/domain/medicalrecord"
	"github.com/clinika/clinika/internal/domain/organization"
	"github.com/clinika/clinika/internal/domain/patient"
	"github.com/clinika/clinika/internal/domain/prescription"
	"github.com/clinika/clinika/internal/domain/subscription"
	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/audit"
	"github.com/clinika/clinika/internal/platform/authz"
	"github.com/clinika/clinika/internal/platform/crypto"
	"github.com/clinika/clinika/internal/platform/db"
	"github.com/clinika/clinika/internal/platform/metrics"
	"github.com/clinika/clinika/internal/platform/middleware"
	"github.com/clinika/clinika/internal/platform/signing"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinika-server",
		Short: "Clinical practice API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration that reverses the change instead.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Platform
	engine, err := crypto.NewEngine(cfg.EncryptionSecret, cfg.SignaturePepper)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize crypto engine")
	}
	m := metrics.New()
	recorder := audit.NewRecorderPG(pool)
	signer := signing.NewSigner(engine, recorder, signing.WithMetrics(m))
	txRunner := db.NewTxRunner(pool)

	// Domain services
	tokenSvc := identity.NewTokenService(cfg.JWTSecret)
	identitySvc := identity.NewService(
		identity.NewRepoPG(pool),
		identity.NewRefreshTokenRepoPG(pool),
		identity.NewMFACodeRepoPG(pool),
		tokenSvc,
		engine,
	)
	orgSvc := organization.NewService(organization.NewRepoPG(pool), organization.NewMembershipRepoPG(pool), txRunner)
	subSvc := subscription.NewService(subscription.NewRepoPG(pool))
	patientSvc := patient.NewService(patient.NewRepoPG(pool), engine)
	doctorSvc := doctor.NewService(doctor.NewRepoPG(pool))
	consultationSvc := consultation.NewService(
		consultation.NewRepoPG(pool),
		&patientDirectory{patients: patientSvc},
		&doctorDirectory{doctors: doctorSvc},
	)
	recordSvc := medicalrecord.NewService(
		medicalrecord.NewRepoPG(pool),
		&recordEncounters{consultations: consultationSvc},
		doctorSvc,
		signer,
		txRunner,
	)
	prescriptionSvc := prescription.NewService(
		prescription.NewRepoPG(pool),
		&prescriptionEncounters{consultations: consultationSvc},
		doctorSvc,
		signer,
		txRunner,
	)
	reportSvc := anvisareport.NewService(
		anvisareport.NewRepoPG(pool),
		&patientDirectory{patients: patientSvc},
		patientSvc,
		doctorSvc,
		signer,
		txRunner,
	)

	// Authorization pipelines
	pipeline := authz.NewPipeline(tokenSvc, orgSvc, subSvc, authz.WithMetrics(m))
	superPipeline := authz.NewSuperAdminPipeline(tokenSvc, orgSvc, m)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", authz.OrganizationHeader},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Routes
	resolver := &doctorResolver{doctors: doctorSvc}
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1, pipeline)
	organization.NewHandler(orgSvc).RegisterRoutes(apiV1, pipeline, superPipeline)
	subscription.NewHandler(subSvc).RegisterRoutes(apiV1, pipeline)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1, pipeline)
	doctor.NewHandler(doctorSvc).RegisterRoutes(apiV1, pipeline)
	consultation.NewHandler(consultationSvc).RegisterRoutes(apiV1, pipeline)
	medicalrecord.NewHandler(recordSvc, resolver).RegisterRoutes(apiV1, pipeline)
	prescription.NewHandler(prescriptionSvc, resolver).RegisterRoutes(apiV1, pipeline)
	anvisareport.NewHandler(reportSvc, resolver).RegisterRoutes(apiV1, pipeline)

	// Health and observability
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// patientGetter is the slice of the patient service the directory adapter
// needs.
type patientGetter interface {
	Get(ctx context.Context, organizationID, id uuid.UUID) (*patient.Patient, error)
}

// patientDirectory adapts the patient service to the existence checks the
// consultation and regulatory-report services perform before writing a row
// that references a patient.
type patientDirectory struct {
	patients patientGetter
}

func (d *patientDirectory) Exists(ctx context.Context, organizationID, patientID uuid.UUID) (bool, error) {
	_, err := d.patients.Get(ctx, organizationID, patientID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type doctorGetter interface {
	Get(ctx context.Context, organizationID, id uuid.UUID) (*doctor.Doctor, error)
}

// doctorDirectory adapts the doctor service to the consultation service's
// existence check.
type doctorDirectory struct {
	doctors doctorGetter
}

func (d *doctorDirectory) Exists(ctx context.Context, organizationID, doctorID uuid.UUID) (bool, error) {
	_, err := d.doctors.Get(ctx, organizationID, doctorID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type consultationGetter interface {
	Get(ctx context.Context, organizationID, id uuid.UUID) (*consultation.Consultation, error)
}

// recordEncounters resolves a consultation into the participant view the
// medical-record service works with.
type recordEncounters struct {
	consultations consultationGetter
}

func (e *recordEncounters) Encounter(ctx context.Context, organizationID, consultationID uuid.UUID) (*medicalrecord.Encounter, error) {
	c, err := e.consultations.Get(ctx, organizationID, consultationID)
	if err != nil {
		return nil, err
	}
	return &medicalrecord.Encounter{PatientID: c.PatientID, DoctorID: c.DoctorID}, nil
}

// prescriptionEncounters is the same adapter for the prescription service,
// which declares its own participant view.
type prescriptionEncounters struct {
	consultations consultationGetter
}

func (e *prescriptionEncounters) Encounter(ctx context.Context, organizationID, consultationID uuid.UUID) (*prescription.Encounter, error) {
	c, err := e.consultations.Get(ctx, organizationID, consultationID)
	if err != nil {
		return nil, err
	}
	return &prescription.Encounter{PatientID: c.PatientID, DoctorID: c.DoctorID}, nil
}

type doctorForUser interface {
	ForUser(ctx context.Context, organizationID, userID uuid.UUID) (*doctor.Doctor, error)
}

// doctorResolver maps the authenticated user to their doctor profile within
// the request's organization. Handlers use it to establish document
// ownership before any doctor-only operation.
type doctorResolver struct {
	doctors doctorForUser
}

func (r *doctorResolver) DoctorID(c echo.Context) (uuid.UUID, error) {
	rc := authz.FromContext(c.Request().Context())
	if rc == nil {
		return uuid.Nil, apperr.Unauthenticated("authentication required")
	}
	d, err := r.doctors.ForUser(c.Request().Context(), rc.OrganizationID, rc.Principal.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return uuid.Nil, apperr.Forbidden("no doctor profile for this user")
		}
		return uuid.Nil, err
	}
	return d.ID, nil
}
