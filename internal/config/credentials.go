package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/hazyhaar/vhist/history"
)

// ErrNoCredentials is returned when the credentials file is missing or empty.
var ErrNoCredentials = errors.New("config: no credentials")

// ErrUnknownUser is returned when the requested account is not in the file.
var ErrUnknownUser = errors.New("config: user not found in credentials")

// LoadCredentials reads the JSON array of {username, password} records.
// A non-empty user filters the result to that single account.
func LoadCredentials(path, user string) ([]history.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoCredentials, path)
		}
		return nil, fmt.Errorf("config: read credentials: %w", err)
	}

	var creds []history.Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("config: parse credentials %s: %w", path, err)
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoCredentials, path)
	}

	if user == "" {
		return creds, nil
	}
	for _, c := range creds {
		if c.Username == user {
			return []history.Credential{c}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownUser, user)
}

var startDateRe = regexp.MustCompile(`^[0-9]{4}/[0-9]{2}/[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2}$`)

// ParseStartDate parses the operator's "YYYY/MM/DD HH:MM:SS" start date.
func ParseStartDate(s string) (time.Time, error) {
	if !startDateRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("config: start date %q: want \"YYYY/MM/DD HH:MM:SS\"", s)
	}
	t, err := time.ParseInLocation("2006/01/02 15:04:05", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: start date %q: %w", s, err)
	}
	return t, nil
}
