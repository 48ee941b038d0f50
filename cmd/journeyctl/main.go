// Package main provides journeyctl, a CLI that replays navigation paths
// read from stdin against a journey collector, one path per line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/shsh-journey/internal/identity"
	"github.com/ashureev/shsh-journey/internal/journey"
)

func main() {
	var (
		baseURL   string
		userID    string
		sessionID string
		timeout   time.Duration
		ordered   bool
		verbose   bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "journey collector base URL")
	flag.StringVar(&userID, "user", "", "existing user ID (default: sign in as a new learner)")
	flag.StringVar(&sessionID, "session", "cli", "tab session ID sent with each report")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.BoolVar(&ordered, "ordered", false, "ignore report completions older than the last accepted one")
	flag.BoolVar(&verbose, "v", false, "verbose output")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: timeout}

	if userID == "" {
		var err error
		userID, err = signIn(ctx, client, baseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger.Info("Signed in", "user_id", userID)
	} else if !identity.IsValidUserID(userID) {
		fmt.Fprintf(os.Stderr, "Error: %q is not a valid user ID\n", userID)
		os.Exit(1)
	}

	opts := []journey.Option{journey.WithLogger(logger)}
	if ordered {
		opts = append(opts, journey.WithOrderedCompletions())
	}
	tracker := journey.NewTracker(journey.NewHTTPSink(baseURL, client), opts...)

	session := &journey.Session{UserID: userID, SessionID: sessionID}
	runErr := replay(ctx, os.Stdin, tracker, session)
	tracker.Close()

	if last, ok := tracker.LastReported(); ok {
		fmt.Printf("last reported: %s\n", last)
	} else {
		fmt.Println("nothing reported")
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Interrupted: %v\n", runErr)
		os.Exit(1)
	}
}

// replay feeds the paths read from r into tracker and, at EOF, waits for the
// reports still in flight. Cancelling ctx abandons both reading and waiting.
func replay(ctx context.Context, r io.Reader, tracker *journey.Tracker, session *journey.Session) error {
	events := make(chan journey.Navigation)
	go feed(ctx, r, session, events)

	if err := journey.Run(ctx, tracker, events); err != nil {
		return err
	}
	return tracker.Wait(ctx)
}

// feed sends one navigation per non-empty, non-comment line of r and closes
// events at EOF.
func feed(ctx context.Context, r io.Reader, session *journey.Session, events chan<- journey.Navigation) {
	defer close(events)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" || strings.HasPrefix(path, "#") {
			continue
		}
		select {
		case events <- journey.Navigation{Session: session, Path: path}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Failed to read paths", "error", err)
	}
}

// signIn creates a new learner on the collector and returns its user ID.
func signIn(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	url := strings.TrimRight(baseURL, "/") + "/api/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("build sign in request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign in: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode sign in response: %w", err)
	}
	if !identity.IsValidUserID(body.UserID) {
		return "", fmt.Errorf("sign in: collector returned invalid user ID %q", body.UserID)
	}
	return body.UserID, nil
}
