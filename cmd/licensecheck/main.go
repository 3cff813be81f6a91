package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"pvcli/internal/config"
	"pvcli/internal/infrastructure"
	"pvcli/internal/license"
	"pvcli/internal/security"
)

// Exit codes: 0 when the command may proceed, 3 when the license has
// expired, 2 on usage or configuration errors.
const exitExpired = 3

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <command>\n\nChecks whether <command> may run under the current license.\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)

	keys := security.NewKeyring(&security.FileKeySource{
		PublicKeyPath:  cfg.Keys.PublicKeyFile,
		PrivateKeyPath: cfg.Keys.PrivateKeyFile,
	})

	codec := license.NewCodec(keys,
		license.WithLabel(cfg.License.Label),
		license.WithLogger(logger),
	)

	var source license.Source = license.EnvSource{Var: cfg.License.EnvVar}
	if cfg.License.File != "" {
		source = license.FileSource{Path: cfg.License.File}
	}

	checker := license.NewChecker(codec, source, cfg.License.GuardedCommands,
		license.WithCheckerLogger(logger))

	result := checker.Check(context.Background(), command)
	switch result.Outcome {
	case license.OutcomeSkipped:
		logger.Debug("command is not license-gated", slog.String("command", command))
	case license.OutcomeValid:
		exp, _ := result.Record.ExpiresAt()
		logger.Info("license is valid",
			slog.String("command", command),
			slog.String("expires_at", exp.Format("2006-01-02")),
		)
	case license.OutcomeExpired:
		fmt.Fprintln(os.Stderr, "Error: your license has expired; renew it to continue using this command")
		os.Exit(exitExpired)
	case license.OutcomeUnresolved:
		// The command still runs: a missing or unreadable license is
		// reported, not fatal.
		fmt.Fprintln(os.Stderr, "Warning: no valid license found; some functionality may be restricted")
	}
}
