// Command oauth-init performs the one-time Google OAuth consent flow and
// stores the resulting token where the sheets store expects it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

func main() {
	creds, err := loadClientCredentials()
	if err != nil {
		log.Fatalf("client credentials: %v", err)
	}

	cfg, err := google.ConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		log.Fatalf("oauth config: %v", err)
	}

	// The OAuth client must list this URI among its authorized redirects.
	redirectPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if redirectPort == "" {
		redirectPort = "8085"
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"

	codeCh := make(chan string, 1)
	srv := &http.Server{Addr: ":" + redirectPort}
	http.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if errStr := r.URL.Query().Get("error"); errStr != "" {
			http.Error(w, "OAuth error: "+errStr, http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this window.")
		codeCh <- r.URL.Query().Get("code")
		go func() { time.Sleep(500 * time.Millisecond); _ = srv.Close() }()
	})
	go func() { _ = srv.ListenAndServe() }()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open this URL to authorize:\n%s\n", authURL)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(context.Background(), code)
		if err != nil {
			log.Fatalf("token exchange: %v", err)
		}
		if err := saveToken(tok); err != nil {
			log.Fatalf("save token: %v", err)
		}
	case <-time.After(5 * time.Minute):
		log.Fatalf("authorization timed out")
	case <-interrupt:
		log.Fatalf("interrupted")
	}
}

func loadClientCredentials() ([]byte, error) {
	if raw := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"); raw != "" {
		return []byte(raw), nil
	}
	if file := os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"); file != "" {
		return os.ReadFile(file)
	}
	return nil, fmt.Errorf("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}

func saveToken(tok *oauth2.Token) error {
	outFile := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")
	if outFile == "" {
		outFile = "token.json"
	}
	f, err := os.OpenFile(outFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return err
	}
	fmt.Printf("Saved token to %s\n", outFile)
	return nil
}
