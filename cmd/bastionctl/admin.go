package main

import (
	"context"
	"fmt"
	"os/user"
	"slices"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var rateLimitScopes = []string{
	models.RateLimitScopeHTTP,
	models.RateLimitScopeLogin,
	models.RateLimitScopeRegister,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <account-id>",
	Short: "Lift an account lockout and reset its failure count",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlock,
}

var resetCodeCmd = &cobra.Command{
	Use:   "reset-code <account-id>",
	Short: "Invalidate the pending activation code of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetCode,
}

var clearRateLimitCmd = &cobra.Command{
	Use:   "clear-rate-limit <scope> <identity>",
	Short: "Delete a rate limit counter",
	Long: `Delete the counter of one identity in one scope. Scope is one of
http, login or register. Identities are "ip:<addr>" or "account:<id>" for
the http scope and a bare client IP for login and register.`,
	Args: cobra.MatchAll(cobra.ExactArgs(2), func(cmd *cobra.Command, args []string) error {
		if !slices.Contains(rateLimitScopes, args[0]) {
			return fmt.Errorf("unknown scope %q (want one of %v)", args[0], rateLimitScopes)
		}
		return nil
	}),
	RunE: runClearRateLimit,
}

func init() {
	rootCmd.AddCommand(unlockCmd, resetCodeCmd, clearRateLimitCmd)
}

// adminServices are the services staff operations run through, backed by
// the database and a synchronously flushed audit sink.
type adminServices struct {
	lockout  *services.LockoutService
	accounts *services.AccountService
	limiter  *services.RateLimitService
	close    func()
}

func newAdminServices(ctx context.Context) (*adminServices, error) {
	cfg, db, err := openDatabase(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Security.CounterBackend == config.CounterBackendMemory {
		logger.Warn("counter backend is memory; rate limit resets only reach the database store")
	}

	clock := clockwork.NewRealClock()
	accountRepo := repositories.NewAccountRepository(db)
	audit := services.NewAuditService(repositories.NewAuditEventRepository(db), cfg.Security.AuditQueueSize, clock, logger)
	auditCtx, cancel := context.WithCancel(context.Background())
	go audit.Start(auditCtx)

	lockout := services.NewLockoutService(accountRepo, services.LockoutConfig{
		Threshold: cfg.Security.LockoutThreshold,
		Duration:  cfg.Security.LockoutDuration,
	}, audit, clock, logger)
	activation := services.NewActivationService(accountRepo, services.ActivationConfig{
		CodeTTL:     cfg.Security.ActivationCodeTTL,
		MaxAttempts: cfg.Security.ActivationCodeMaxAttempts,
	}, clock, logger)
	limiter := services.NewRateLimitService(repositories.NewCounterRepository(db, clock),
		cfg.Security.RateLimitSaturation, audit, clock, logger)
	accounts := services.NewAccountService(accountRepo, activation, nil, limiter, audit, services.AccountConfig{
		ResendCooldown: cfg.Security.ActivationResendCooldown,
	}, clock, logger)

	return &adminServices{
		lockout:  lockout,
		accounts: accounts,
		limiter:  limiter,
		close: func() {
			audit.Stop()
			cancel()
			db.Close()
		},
	}, nil
}

// operator names the local user in audit records
func operator() string {
	if u, err := user.Current(); err == nil {
		return "cli:" + u.Username
	}
	return "cli"
}

func parseAccountID(arg string) (string, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("invalid account id %q: %w", arg, err)
	}
	return id.String(), nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}

	svc, err := newAdminServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.lockout.Unlock(cmd.Context(), id, operator()); err != nil {
		return err
	}
	return printJSON(cmd, struct {
		AccountID string `json:"account_id"`
		Unlocked  bool   `json:"unlocked"`
	}{AccountID: id, Unlocked: true})
}

func runResetCode(cmd *cobra.Command, args []string) error {
	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}

	svc, err := newAdminServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.accounts.ResetActivationCode(cmd.Context(), id, operator()); err != nil {
		return err
	}
	return printJSON(cmd, struct {
		AccountID   string `json:"account_id"`
		CodeRemoved bool   `json:"code_removed"`
	}{AccountID: id, CodeRemoved: true})
}

func runClearRateLimit(cmd *cobra.Command, args []string) error {
	svc, err := newAdminServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.limiter.Reset(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	return printJSON(cmd, struct {
		Scope    string `json:"scope"`
		Identity string `json:"identity"`
		Cleared  bool   `json:"cleared"`
	}{Scope: args[0], Identity: args[1], Cleared: true})
}
