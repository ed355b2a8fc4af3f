package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func init() {
	// Optional .env file for local development; real deployments set
	// environment variables directly.
	_ = godotenv.Load()
}

// GetEndpoint returns the server base URL used by the CLI client
func GetEndpoint() string {
	if endpoint := os.Getenv("TRANE_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:8000"
}

// GetLibraryRoot returns the directory holding uploads and separated stems
func GetLibraryRoot() string {
	if customPath := os.Getenv("TRANE_LIBRARY"); customPath != "" {
		return customPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if can't get home dir
		return filepath.Join(".", "library")
	}

	return filepath.Join(homeDir, "Music", "Trane")
}

// GetDatabasePath returns the SQLite database location
func GetDatabasePath() string {
	if dbPath := os.Getenv("TRANE_DB"); dbPath != "" {
		return dbPath
	}
	return filepath.Join(GetLibraryRoot(), "trane.db")
}

// GetTokenSecret returns the secret used to sign auth tokens
func GetTokenSecret() string {
	if secret := os.Getenv("TRANE_SECRET"); secret != "" {
		return secret
	}
	return "trane-dev-secret"
}

// GetSessionFilePath returns where the CLI persists its token pair
func GetSessionFilePath() string {
	if customPath := os.Getenv("TRANE_SESSION_FILE"); customPath != "" {
		return customPath
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".trane", "session.json")
}
