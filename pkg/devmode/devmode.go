// Package devmode reports the developer-mode state of a webOS device: the
// time-limited session token stored on the device and, when the vendor
// endpoint confirms it, the remaining validity.
package devmode

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/webosbrew/devman/pkg/devices"
	"github.com/webosbrew/devman/pkg/logger"
)

// TokenPath is the device-local file holding the developer-mode session token.
const TokenPath = "/var/luna/preferences/devmode_enabled"

const defaultCheckURL = "https://developer.lge.com/secure/CheckDevModeSession.dev"

const maxCheckRetries = 3

// ErrNotEnabled is returned when the device has no valid developer-mode token.
var ErrNotEnabled = errors.New("developer mode is not enabled")

var tokenPattern = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// FileReader is the slice of the session manager devmode needs: a pooled
// remote file read.
type FileReader interface {
	ReadFile(device devices.Device, path string) ([]byte, error)
}

// Status describes the developer-mode session. Remaining is empty when the
// vendor endpoint did not confirm the token.
type Status struct {
	Token     string `json:"token,omitempty"`
	Remaining string `json:"remaining,omitempty"`
}

// checkReply is the vendor endpoint's response shape.
type checkReply struct {
	Result    string `json:"result"`
	ErrorCode string `json:"errorCode"`
	ErrorMsg  string `json:"errorMsg"`
}

type Client struct {
	sessions FileReader
	http     *http.Client
	checkURL string
	log      *logger.Logger
}

func New(sessions FileReader) *Client {
	return &Client{
		sessions: sessions,
		http:     &http.Client{Timeout: 15 * time.Second},
		checkURL: defaultCheckURL,
		log:      logger.Get(),
	}
}

// Token reads the session token from the device. A missing or malformed
// token is ErrNotEnabled, not an I/O error.
func (c *Client) Token(device devices.Device) (string, error) {
	data, err := c.sessions.ReadFile(device, TokenPath)
	if err != nil {
		return "", fmt.Errorf("failed to read devmode token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if !tokenPattern.MatchString(token) {
		c.log.Debugf("Token %q doesn't look like a valid devmode token", token)
		return "", ErrNotEnabled
	}
	return token, nil
}

// Status validates the device token against the vendor endpoint. A structured
// non-success reply means the token exists but its remaining validity is
// unknown; only transport failures after retries are errors.
func (c *Client) Status(device devices.Device) (Status, error) {
	token, err := c.Token(device)
	if err != nil {
		if errors.Is(err, ErrNotEnabled) {
			return Status{}, nil
		}
		return Status{}, err
	}

	reply, err := c.checkSession(token)
	if err != nil {
		return Status{}, err
	}
	if reply.Result == "success" {
		return Status{Token: token, Remaining: reply.ErrorMsg}, nil
	}
	c.log.Debugf("Devmode session check returned %q (%s)", reply.Result, reply.ErrorCode)
	return Status{Token: token}, nil
}

func (c *Client) checkSession(token string) (checkReply, error) {
	checkURL, err := url.Parse(c.checkURL)
	if err != nil {
		return checkReply{}, fmt.Errorf("invalid devmode check url: %w", err)
	}
	query := checkURL.Query()
	query.Set("sessionToken", token)
	checkURL.RawQuery = query.Encode()

	var reply checkReply
	operation := func() error {
		resp, err := c.http.Get(checkURL.String())
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("devmode check returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&reply)
	}
	err = backoff.Retry(operation,
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxCheckRetries))
	if err != nil {
		return checkReply{}, fmt.Errorf("failed to check devmode session: %w", err)
	}
	return reply, nil
}
