package simplefin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
)

// AuthState is the claimed access URL persisted between runs.
type AuthState struct {
	ClaimedAt  time.Time `json:"claimed_at"`
	AccessURL  string    `json:"access_url"`
	ClaimToken string    `json:"claim_token_hint"`
}

// DefaultStatePath returns $XDG_DATA_HOME/tally/simplefin_auth.json, falling
// back to ~/.local/share.
func DefaultStatePath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "tally", "simplefin_auth.json"), nil
}

// LoadOrClaim returns the saved access URL, claiming token and saving the
// result when none is stored yet. A claim token can be used only once.
func LoadOrClaim(ctx context.Context, httpClient *http.Client, statePath, token string, logger *slog.Logger) (*AuthState, error) {
	auth, err := loadAuthState(statePath)
	if err == nil && auth.AccessURL != "" {
		logger.Debug("Using saved SimpleFIN access URL",
			"claimed_at", auth.ClaimedAt.Format(time.DateOnly),
			"state_file", statePath)
		return auth, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read SimpleFIN state: %w", err)
	}

	if token == "" {
		return nil, fmt.Errorf("%w: simplefin.token is required until a token has been claimed", common.ErrMissingConfig)
	}

	logger.Info("No saved SimpleFIN auth found, claiming token")
	accessURL, err := claimToken(ctx, httpClient, token)
	if err != nil {
		return nil, err
	}

	auth = &AuthState{
		AccessURL:  accessURL,
		ClaimedAt:  time.Now().UTC(),
		ClaimToken: tokenHint(token),
	}
	if err := saveAuthState(statePath, auth); err != nil {
		return nil, fmt.Errorf("failed to save SimpleFIN state: %w", err)
	}

	logger.Info("Claimed SimpleFIN access URL", "state_file", statePath)
	return auth, nil
}

// claimToken decodes a setup token into its claim URL and POSTs to it for
// the access URL.
func claimToken(ctx context.Context, httpClient *http.Client, token string) (string, error) {
	claimURL, err := decodeToken(token)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create claim request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to claim access URL: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read claim response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to claim SimpleFIN access: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	accessURL := strings.TrimSpace(string(body))
	if !isHTTPURL(accessURL) {
		return "", fmt.Errorf("invalid access URL received: %q", accessURL)
	}
	return accessURL, nil
}

func decodeToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		if decoded, err = base64.StdEncoding.DecodeString(token); err != nil {
			return "", fmt.Errorf("%w: SimpleFIN token is not base64", common.ErrInvalidConfig)
		}
	}

	claimURL := string(decoded)
	if !isHTTPURL(claimURL) {
		return "", fmt.Errorf("%w: SimpleFIN token does not decode to a URL", common.ErrInvalidConfig)
	}
	return claimURL, nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func loadAuthState(path string) (*AuthState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var auth AuthState
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

func saveAuthState(path string, auth *AuthState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// tokenHint keeps the ends of a token so a state file can be matched to it.
func tokenHint(token string) string {
	if len(token) > 16 {
		return token[:8] + "..." + token[len(token)-8:]
	}
	return "short_token"
}
