package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/storemods/internal/cert"
	"github.com/flemzord/storemods/internal/config"
	"github.com/flemzord/storemods/internal/cron"
	"github.com/flemzord/storemods/internal/deps"
	"github.com/flemzord/storemods/internal/gateway"
	"github.com/flemzord/storemods/internal/manager"
	"github.com/flemzord/storemods/internal/reload"
	"github.com/flemzord/storemods/internal/security"
	"github.com/flemzord/storemods/internal/settings"
	"github.com/flemzord/storemods/internal/store"
	"github.com/flemzord/storemods/internal/telemetry"
	"github.com/flemzord/storemods/internal/upload"
)

// StackOptions tune NewStack.
type StackOptions struct {
	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Version is reported as the telemetry service version.
	Version string
}

// Stack is the wired module manager with everything it depends on. The
// CLI commands and the server share it.
type Stack struct {
	Config   *config.Config
	Logger   *slog.Logger
	Redactor *security.Redactor
	Audit    *security.AuditLogger
	Store    *store.SQLStore
	Manager  *manager.Manager
	Uploads  *upload.Pipeline
	Verifier *cert.Verifier
	Tracer   trace.TracerProvider

	closers []func(context.Context) error
}

// NewStack opens the database and builds the manager and upload pipeline
// described by cfg. Call Close when done.
func NewStack(ctx context.Context, cfg *config.Config, opts StackOptions) (_ *Stack, err error) {
	s := &Stack{Config: cfg}
	defer func() {
		if err != nil {
			_ = s.Close(context.Background())
		}
	}()

	s.Redactor = security.NewRedactor()
	registerSecrets(s.Redactor, cfg)
	s.Logger = newLogger(cfg.Log, opts.LogOutput, s.Redactor)

	auditOut, err := openAudit(cfg.Audit.Path)
	if err != nil {
		return nil, err
	}
	if auditOut != nil {
		s.closers = append(s.closers, func(context.Context) error { return auditOut.Close() })
	}
	auditLog := s.Logger.With("component", "audit")
	s.Audit = security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   writerOrNil(auditOut),
		Redactor: s.Redactor,
		OnEvent: func(e security.AuditEvent) {
			auditLog.Info("audit", "type", e.Type, "module", e.Module, "actor", e.Actor, "success", e.Success)
		},
	})

	tp, shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     opts.Version,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, s.Logger)
	if err != nil {
		return nil, err
	}
	s.Tracer = tp
	s.closers = append(s.closers, shutdown)

	if store.Dialect(cfg.Database.Driver) != store.MySQL && cfg.Database.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	s.Store, err = store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func(context.Context) error { return s.Store.Close() })

	var installer deps.Installer = deps.Nop{}
	if !cfg.Dependencies.Disabled {
		installer = &deps.CommandInstaller{
			Command: cfg.Dependencies.Command,
			Timeout: cfg.Dependencies.Timeout,
			Logger:  s.Logger,
		}
	}

	s.Manager, err = manager.New(manager.Config{
		ModulesRoot:  cfg.Paths.Modules,
		DownloadsDir: cfg.Paths.Downloads,
		TemplatesDir: cfg.Paths.Templates,
		StaticDir:    cfg.Paths.Static,
		MediaDir:     cfg.Paths.Media,
		ProjectRoot:  cfg.Paths.ProjectRoot,
		SweepByName:  cfg.Purge.SweepByName,
	},
		manager.WithLogger(s.Logger),
		manager.WithStore(s.Store),
		manager.WithInstaller(installer),
		manager.WithSettings(settings.NewFileStore(cfg.Paths.Modules, nil)),
		manager.WithAudit(s.Audit),
		manager.WithTracerProvider(tp),
	)
	if err != nil {
		return nil, err
	}

	maxSize, err := cfg.Upload.Bytes()
	if err != nil {
		return nil, fmt.Errorf("upload.max_size: %w", err)
	}
	s.Verifier, err = cert.NewVerifier(cert.VerifyConfig{
		RequireSigned: cfg.Upload.RequireSigned,
		TrustedKeys:   cfg.Upload.TrustedKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("upload signing: %w", err)
	}
	s.Uploads = upload.NewPipeline(s.Manager, upload.Config{
		StagingDir:  cfg.Paths.Staging,
		MaxSize:     maxSize,
		Overwrite:   cfg.Upload.Overwrite,
		AutoInstall: cfg.Upload.AutoInstall,
	}, upload.WithLogger(s.Logger), upload.WithAudit(s.Audit), upload.WithVerifier(s.Verifier))

	return s, nil
}

// Gateway builds the HTTP gateway over the stack.
func (s *Stack) Gateway() (*gateway.Gateway, error) {
	gwCfg := s.Config.Gateway
	if maxSize, err := s.Config.Upload.Bytes(); err == nil && maxSize > 0 {
		gwCfg.MaxUploadSize = maxSize
	}
	return gateway.New(gwCfg, s.Manager, s.Uploads,
		gateway.WithLogger(s.Logger),
		gateway.WithAudit(s.Audit),
		gateway.WithRedactor(s.Redactor),
	)
}

// Scheduler builds the maintenance job scheduler. Jobs whose schedule is
// "off" are left out.
func (s *Stack) Scheduler() (*cron.Scheduler, error) {
	sched := cron.NewScheduler(s.Logger)
	jobs := []struct {
		expr string
		job  cron.Job
	}{
		{s.Config.Cron.Rescan, &cron.RescanJob{Manager: s.Manager, Logger: s.Logger, ScheduleExpr: s.Config.Cron.Rescan}},
		{s.Config.Cron.UploadSweep, &cron.UploadSweepJob{
			Pipeline:     s.Uploads,
			MaxAge:       s.Config.Cron.StagingMaxAge,
			Logger:       s.Logger,
			ScheduleExpr: s.Config.Cron.UploadSweep,
		}},
	}
	for _, j := range jobs {
		if j.expr == config.Disabled {
			continue
		}
		if err := sched.RegisterJob(j.job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Reloader builds the service that syncs the manager when another process
// changes the modules root or the saved settings. It returns nil when
// reload.disabled is set.
func (s *Stack) Reloader() *reload.Service {
	rc := s.Config.Reload
	if rc.Disabled {
		return nil
	}
	return reload.NewService(reload.WatcherConfig{
		Paths:        []string{s.Manager.Root(), filepath.Join(s.Manager.Root(), settings.Dir)},
		Poll:         rc.Poll,
		PollInterval: rc.PollInterval,
		Debounce:     rc.Debounce,
	}, s.Manager, s.Logger)
}

// Close releases the stack's resources in reverse order of acquisition.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig, out io.Writer, redactor *security.Redactor) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel(), ReplaceAttr: redactor.ReplaceAttr}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// registerSecrets teaches the redactor the literal secrets found in cfg.
func registerSecrets(r *security.Redactor, cfg *config.Config) {
	r.AddLiteral(cfg.Gateway.Auth.BearerToken)
	r.AddLiteral(cfg.Gateway.Auth.BasicPass)
	if store.Dialect(cfg.Database.Driver) == store.MySQL {
		if dsn, err := mysql.ParseDSN(cfg.Database.DSN); err == nil {
			r.AddLiteral(dsn.Passwd)
		}
	}
}

func openAudit(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return f, nil
}

// writerOrNil avoids handing the audit logger a typed nil writer.
func writerOrNil(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}
