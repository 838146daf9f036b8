package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/rfiorani/echomatch/internal/audio"
	"github.com/rfiorani/echomatch/internal/client"
	"github.com/rfiorani/echomatch/internal/echoprint"
	"github.com/rfiorani/echomatch/internal/session"
	"github.com/rfiorani/echomatch/pkg/logger"
)

var (
	serverURL   string
	tempDir     string
	sampleRate  int
	chunkSecs   int
	maxAttempts int
	codegenPath string
)

func init() {
	_ = godotenv.Load()

	flag.StringVar(&serverURL, "server", getEnvOrDefault("ECHOMATCH_SERVER", "http://localhost:8080"), "Identification server base URL")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("ECHOMATCH_TEMP_DIR", "/tmp"), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", session.DefaultSampleRate, "Audio sample rate for fingerprinting")
	flag.IntVar(&chunkSecs, "chunk", int(session.DefaultChunkDuration.Seconds()), "Capture chunk duration in seconds")
	flag.IntVar(&maxAttempts, "attempts", session.DefaultMaxAttempts, "Maximum identification attempts before giving up")
	flag.StringVar(&codegenPath, "codegen", getEnvOrDefault("ECHOMATCH_CODEGEN", "echoprint-codegen"), "Path to the fingerprint codegen binary")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	audioPath := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Non-WAV input, and WAV recorded at a different rate than the
	// fingerprinter expects, go through ffmpeg first.
	needsConvert := strings.ToLower(filepath.Ext(audioPath)) != ".wav"
	if !needsConvert {
		rate, err := audio.SampleRate(audioPath)
		if err != nil {
			fmt.Printf("❌ Failed to read audio source: %v\n", err)
			log.Errorf("Reading WAV header failed: %v", err)
			os.Exit(1)
		}
		needsConvert = rate != sampleRate
	}
	if needsConvert {
		fmt.Println("🎛  Converting input to mono WAV...")
		converted, err := audio.ConvertToMonoWAV(ctx, audioPath, tempDir, audio.ConvertWAVConfig{SampleRate: sampleRate})
		if err != nil {
			fmt.Printf("❌ Failed to convert audio: %v\n", err)
			log.Errorf("Conversion failed: %v", err)
			os.Exit(1)
		}
		defer os.Remove(converted)
		audioPath = converted
	}

	recorder, err := audio.NewFileRecorder(audioPath, time.Duration(chunkSecs)*time.Second)
	if err != nil {
		fmt.Printf("❌ Failed to open audio source: %v\n", err)
		log.Errorf("Recorder setup failed: %v", err)
		os.Exit(1)
	}

	sess := session.New(
		recorder,
		&echoprint.ExecGenerator{Path: codegenPath},
		client.New(serverURL),
		session.Config{
			MaxAttempts: maxAttempts,
			SampleRate:  recorder.SampleRate(),
		},
	)

	fmt.Printf("🎧 Listening to %s (%s Hz)...\n", filepath.Base(audioPath), humanize.Comma(int64(recorder.SampleRate())))
	log.Infof("Session %s started against %s", sess.ID(), serverURL)

	result, err := sess.Run(ctx)
	if err != nil {
		if errors.Is(err, session.ErrDeviceUnavailable) {
			fmt.Printf("\n❌ Capture device unavailable: %v\n", err)
		} else {
			fmt.Printf("\n❌ Identification failed: %v\n", err)
		}
		log.Errorf("Session %s failed: %v", sess.ID(), err)
		os.Exit(1)
	}

	switch result.Status {
	case session.Found:
		fmt.Println("\n✅ Match found!")
		fmt.Printf("   Track:  %s\n", stringOr(result.Match.Meta.Title, result.Match.TrackID))
		fmt.Printf("   Artist: %s\n", stringOr(result.Match.Meta.Artist, "(unknown)"))
		if result.Match.Meta.Album != nil {
			fmt.Printf("   Album:  %s\n", *result.Match.Meta.Album)
		}
		fmt.Printf("   Score:  %s (after %d attempt(s))\n", humanize.Comma(int64(result.Match.Score)), result.Attempts)
		log.Infof("Session %s matched %s", sess.ID(), result.Match.TrackID)

	case session.NotFound:
		fmt.Printf("\n❌ No match after %d attempt(s)\n", result.Attempts)
		log.Infof("Session %s found no match", sess.ID())
	}
}

func stringOr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}

func printUsage() {
	fmt.Println("echomatch listen - identify a song from an audio file")
	fmt.Println("\nUsage:")
	fmt.Println("  listen [options] <audio_file>")
	fmt.Println("\nOptions:")
	fmt.Println("  --server <url>     Identification server (env: ECHOMATCH_SERVER, default: http://localhost:8080)")
	fmt.Println("  --temp <dir>       Temporary directory for conversion (env: ECHOMATCH_TEMP_DIR, default: /tmp)")
	fmt.Println("  --rate <hz>        Sample rate for fingerprinting (default: 11025)")
	fmt.Println("  --chunk <secs>     Chunk duration in seconds (default: 5)")
	fmt.Println("  --attempts <n>     Maximum attempts before giving up (default: 3)")
	fmt.Println("  --codegen <path>   Fingerprint codegen binary (env: ECHOMATCH_CODEGEN)")
	fmt.Println("\nExamples:")
	fmt.Println("  listen recording.wav")
	fmt.Println("  listen --server http://match.example.com --attempts 5 clip.mp3")
}
