package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rfiorani/echomatch/internal/identify"
)

var (
	port           int
	indexPath      string
	metaPath       string
	allowedOrigins string
)

func init() {
	// Flags read their defaults from the environment, so load .env first.
	_ = godotenv.Load()

	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&indexPath, "index-db", getEnvOrDefault("AUDIO_DB", "audio_index.sqlite3"), "Path to fingerprint index SQLite database")
	flag.StringVar(&metaPath, "meta-db", getEnvOrDefault("META_DB", "meta.sqlite3"), "Path to metadata SQLite database")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service := identify.New(
		identify.WithIndexPath(indexPath),
		identify.WithMetaPath(metaPath),
	)
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		IndexPath:      indexPath,
		MetaPath:       metaPath,
		AllowedOrigins: origins,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
