// Command lotmarket-client is an interactive terminal client for the
// password-protected session flow. It keeps the encrypted session
// envelope in a local sqlite store and talks to the lotmarket server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"lotmarket/internal/auth"
	"lotmarket/internal/client"
	"lotmarket/internal/client/storage"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "lotmarket server URL")
	dataDir := flag.String("data-dir", defaultDataDir(), "local storage directory")
	devSecret := flag.String("dev-secret", "", "mint a dev assertion with this bot secret instead of reading LOTMARKET_INIT_DATA")
	devUserID := flag.Int64("dev-user", 1, "platform user id for minted dev assertions")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	store, err := storage.OpenSQLite(filepath.Join(*dataDir, "client.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open local storage:", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	installID, err := client.EnsureInstallID(ctx, store)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize install id:", err)
		os.Exit(1)
	}

	apiClient := client.NewClient(*serverURL, installID)
	orch := client.NewOrchestrator(store, apiClient, assertionProvider(*devSecret, *devUserID), logger)

	if err := orch.Init(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "initialization failed:", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		switch orch.State() {
		case client.StateWelcome:
			fmt.Println("Welcome to lotmarket. Your session will be protected by a password.")
			fmt.Print("Press Enter to continue...")
			_, _ = reader.ReadString('\n')
			if err := orch.CompleteWelcome(ctx); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}

		case client.StatePasswordSetup:
			if msg := orch.LastError(); msg != "" {
				fmt.Println("!", msg)
			}
			fmt.Println("Choose a password (at least 6 characters, with letters and digits).")
			password, err := readPassword("New password: ")
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if err := orch.SetupPassword(ctx, password); err != nil {
				fmt.Println("!", orch.LastError())
			}

		case client.StatePasswordEntry:
			if msg := orch.LastError(); msg != "" {
				fmt.Println("!", msg)
			}
			password, err := readPassword("Password: ")
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if err := orch.SubmitPassword(ctx, password); err != nil {
				fmt.Println("!", orch.LastError())
			}

		case client.StateAuthenticated:
			user := orch.User()
			fmt.Printf("Signed in as %s %s (@%s)\n", user.FirstName, user.LastName, user.Username)
			fmt.Print("Type 'logout' to sign out, anything else to quit: ")
			line, _ := reader.ReadString('\n')
			if line == "logout\n" {
				if err := orch.Logout(ctx); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
				fmt.Println("Signed out.")
				continue
			}
			return

		case client.StateError:
			fmt.Fprintln(os.Stderr, "unrecoverable error:", orch.LastError())
			os.Exit(1)
		}
	}
}

// assertionProvider reads the platform-issued assertion from the
// environment, or mints one locally when a dev secret was supplied.
func assertionProvider(devSecret string, devUserID int64) client.AssertionProvider {
	return func(ctx context.Context) (string, string, error) {
		if raw := os.Getenv("LOTMARKET_INIT_DATA"); raw != "" {
			return raw, os.Getenv("LOTMARKET_START_PARAM"), nil
		}
		if devSecret == "" {
			return "", "", errors.New("LOTMARKET_INIT_DATA is not set")
		}

		userJSON := fmt.Sprintf(`{"id":%d,"first_name":"Dev","username":"dev_user"}`, devUserID)
		raw := auth.EncodeInitData(map[string]string{
			"user":      userJSON,
			"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
			"query_id":  "dev-" + strconv.FormatInt(time.Now().UnixNano(), 10),
		}, devSecret)
		return raw, "", nil
	}
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "lotmarket")
}
