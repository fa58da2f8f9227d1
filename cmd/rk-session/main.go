package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/rkai/rk-session/internal"
	"github.com/rkai/rk-session/internal/config"
	"github.com/rkai/rk-session/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v1",
		"server": map[string]any{
			"baseURL":        "https://rk.yourcompany.com",
			"addr":           ":8080",
			"appScheme":      "rkai",
			"allowedOrigins": []string{"https://rk.yourcompany.com"},
			"rateLimit": map[string]any{
				"requestsPerMinute": 60,
				"burst":             20,
			},
		},
		"identity": map[string]any{
			"kind":      "appwrite",
			"endpoint":  "https://cloud.appwrite.io/v1",
			"projectId": map[string]string{"$env": "APPWRITE_PROJECT_ID"},
			"apiKey":    map[string]string{"$env": "APPWRITE_API_KEY"},
			"provider":  "google",
			"scopes":    []string{"email", "profile"},
		},
		"google": map[string]any{
			"clientIds":      []any{map[string]string{"$env": "GOOGLE_CLIENT_ID"}},
			"clientSecret":   map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
			"allowedDomains": []string{},
		},
		"storage": map[string]any{
			"kind":                "firestore",
			"gcpProject":          map[string]string{"$env": "GCP_PROJECT"},
			"firestoreCollection": "rk_session",
			"pendingTtl":          "10m",
			"cleanupInterval":     "1m",
		},
		"routes": map[string]any{
			"home":    "/home",
			"pairing": "/pair-device",
			"login":   "/login",
		},
		"auth": map[string]any{
			"jwtSecret":     map[string]string{"$env": "JWT_SECRET"},
			"encryptionKey": map[string]string{"$env": "ENCRYPTION_KEY"},
			"userJwtTtl":    "15m",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Println("Result: PASS")
	} else if len(result.Errors) == 0 {
		fmt.Println("Result: FAIL (warnings present)")
	} else {
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

// loadEnvFile loads KEY=VALUE pairs before the config resolves its $env
// references. Variables already set in the environment win. A missing
// default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil {
		log.LogDebug("Loaded environment from %s", path)
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func main() {
	conf := flag.String("config", "", "path to config file, JSON or YAML (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	envFile := flag.String("env-file", "", "load environment variables from this file (default .env if present)")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	envPath := *envFile
	if envPath == "" {
		envPath = ".env"
	}
	if err := loadEnvFile(envPath, *envFile != ""); err != nil {
		log.LogError("Failed to load env file %s: %v", envPath, err)
		os.Exit(1)
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Logging.Level != "" && os.Getenv("LOG_LEVEL") == "" {
		if err := log.SetLogLevel(cfg.Logging.Level); err != nil {
			log.LogWarn("Ignoring logging.level: %v", err)
		}
	}
	if cfg.Logging.File != "" {
		detach, err := log.AttachFileSink(cfg.Logging.File)
		if err != nil {
			log.LogError("Failed to open log file: %v", err)
			os.Exit(1)
		}
		defer detach()
	}

	log.LogInfoWithFields("main", "Starting rk-session", map[string]any{
		"version":   BuildVersion,
		"config":    *conf,
		"log_level": log.GetLogLevel(),
	})

	ctx := context.Background()
	app, err := internal.New(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create session bridge: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
