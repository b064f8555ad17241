package banner

import (
	"fmt"

	"fieldnotes/pkg/config"
)

const banner = `
███████╗██╗███████╗██╗     ██████╗ ███╗   ██╗ ██████╗ ████████╗███████╗███████╗
██╔════╝██║██╔════╝██║     ██╔══██╗████╗  ██║██╔═══██╗╚══██╔══╝██╔════╝██╔════╝
█████╗  ██║█████╗  ██║     ██║  ██║██╔██╗ ██║██║   ██║   ██║   █████╗  ███████╗
██╔══╝  ██║██╔══╝  ██║     ██║  ██║██║╚██╗██║██║   ██║   ██║   ██╔══╝  ╚════██║
██║     ██║███████╗███████╗██████╔╝██║ ╚████║╚██████╔╝   ██║   ███████╗███████║
╚═╝     ╚═╝╚══════╝╚══════╝╚═════╝ ╚═╝  ╚═══╝ ╚═════╝    ╚═╝   ╚══════╝╚══════╝
`

// Print shows the startup banner with the effective configuration and a
// few pre-production checks.
func Print(cfg *config.Config, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s\n", cfg.Addr())
	fmt.Printf("DB Path:   %s\n", cfg.Storage.DBPath)
	fmt.Printf("Blob Path: %s\n", cfg.Storage.BlobPath)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Printf("Config:    %s\n", source)

	fmt.Println("\n== Limits =====================================================")
	if cfg.Limits.Login.Daily {
		fmt.Printf("- Login gate: %d attempts per day\n", cfg.Limits.Login.Limit)
	} else {
		fmt.Printf("- Login gate: %d attempts per %s\n", cfg.Limits.Login.Limit, cfg.Limits.Login.Window.Duration())
	}
	fmt.Printf("- Upload gate: %d uploads per %s\n", cfg.Limits.Upload.Limit, cfg.Limits.Upload.Window.Duration())
	fmt.Printf("- Vault max file size: %d bytes\n", cfg.Vault.MaxFileSize.Int64())

	fmt.Println("\n== Production? ================================================")
	if cfg.Storage.DBPath == "./.database" {
		fmt.Println("- DB Path: default (set --db or FIELDNOTES_DB_PATH)")
	} else {
		fmt.Printf("- DB Path: %s\n", cfg.Storage.DBPath)
	}
	if cfg.Sweeper.Enabled {
		fmt.Printf("- Sweeper: enabled (cron=%s)\n", cfg.Sweeper.Cron)
	} else {
		fmt.Println("- Sweeper: disabled (expired counters reclaimed lazily only)")
	}

	fmt.Println("\n== Logs: ======================================================")
}
