package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"fieldnotes/internal/app"
	"fieldnotes/pkg/auth"
	"fieldnotes/pkg/banner"
	"fieldnotes/pkg/config"
	"fieldnotes/pkg/logger"
	"fieldnotes/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load(".env")
	flags := config.ParseConfigFlags()

	cfg, source, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(cfg.Logging.Level)

	verStr := version
	if commit != "none" {
		verStr = verStr + " (" + commit + ")"
	}
	banner.Print(cfg, source, verStr)

	a, err := app.New(cfg, devCredentialChecker(), verStr)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Storage.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("run failed", err, cfg.Storage.DBPath)
	}
}

// devCredentialChecker verifies against FIELDNOTES_DEV_USERS
// ("email:secret,email:secret"). Production deployments sit behind an
// external identity provider and wire their own checker; with the env
// unset every login is rejected.
func devCredentialChecker() auth.CredentialChecker {
	users := map[string]string{}
	for _, pair := range strings.Split(os.Getenv("FIELDNOTES_DEV_USERS"), ",") {
		if email, secret, ok := strings.Cut(strings.TrimSpace(pair), ":"); ok {
			users[strings.ToLower(email)] = secret
		}
	}
	return func(ctx context.Context, email, secret string) (bool, error) {
		want, ok := users[strings.ToLower(strings.TrimSpace(email))]
		return ok && want == secret, nil
	}
}
