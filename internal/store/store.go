// Package store persists everything a run produces under the output root:
//
//	{root}/{username}/cookies.json
//	{root}/{username}/{YYYY-MM-DD}/{attempt}/metadata.json
//	{root}/{username}/{YYYY-MM-DD}/{attempt}/errors.json
//	{root}/{username}/{YYYY-MM-DD}/{attempt}/captcha.jpg
//	{root}/{username}/{YYYY-MM-DD}/{attempt}/0.wav, 1.wav, ...
//
// Attempt directories are never reused: each run on the same date takes
// max(existing)+1.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/hazyhaar/vhist/guard"
	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
)

const (
	MetadataFile = "metadata.json"
	ErrorsFile   = "errors.json"
	CookiesFile  = "cookies.json"
	CaptchaFile  = "captcha.jpg"
)

// Store reads and writes run artifacts on an afero filesystem.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at root.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// NewOS returns a Store on the real filesystem.
func NewOS(root string) *Store {
	return New(afero.NewOsFs(), root)
}

// RecordingPath is one run's output directory.
type RecordingPath struct {
	Dir      string
	Username string
	Date     string
	Attempt  int
}

// UserDir returns the account directory, refusing usernames that would
// escape the output root.
func (s *Store) UserDir(username string) (string, error) {
	dir, err := guard.SafePath(s.root, username)
	if err != nil {
		return "", fmt.Errorf("store: username %q: %w", username, err)
	}
	return dir, nil
}

// NewRecordingPath creates the next attempt directory for username on the
// date of now. Existing attempts are left untouched.
func (s *Store) NewRecordingPath(username string, now time.Time) (RecordingPath, error) {
	userDir, err := s.UserDir(username)
	if err != nil {
		return RecordingPath{}, err
	}
	date := history.RunDate(now)
	dateDir := filepath.Join(userDir, date)

	attempts, err := s.attempts(dateDir)
	if err != nil {
		return RecordingPath{}, err
	}
	next := 0
	if len(attempts) > 0 {
		next = attempts[len(attempts)-1] + 1
	}

	dir := filepath.Join(dateDir, strconv.Itoa(next))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return RecordingPath{}, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return RecordingPath{Dir: dir, Username: username, Date: date, Attempt: next}, nil
}

// attempts lists the numeric subdirectories of dir in ascending order.
// A missing dir has no attempts.
func (s *Store) attempts(dir string) ([]int, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", dir, err)
	}
	var out []int
	for _, fi := range infos {
		if !fi.IsDir() {
			continue
		}
		n, err := strconv.Atoi(fi.Name())
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// PreviousMetadata returns the metadata of the most recent earlier run of
// rp's account: lower attempts on the same date first, then earlier dates,
// newest first. No earlier metadata yields an empty history.
func (s *Store) PreviousMetadata(rp RecordingPath) ([]history.Entry, string, error) {
	userDir, err := s.UserDir(rp.Username)
	if err != nil {
		return nil, "", err
	}

	var candidates []string

	same, err := s.attempts(filepath.Join(userDir, rp.Date))
	if err != nil {
		return nil, "", err
	}
	for i := len(same) - 1; i >= 0; i-- {
		if same[i] < rp.Attempt {
			candidates = append(candidates, filepath.Join(userDir, rp.Date, strconv.Itoa(same[i])))
		}
	}

	dates, err := s.earlierDates(userDir, rp.Date)
	if err != nil {
		return nil, "", err
	}
	for _, d := range dates {
		att, err := s.attempts(filepath.Join(userDir, d))
		if err != nil {
			return nil, "", err
		}
		for i := len(att) - 1; i >= 0; i-- {
			candidates = append(candidates, filepath.Join(userDir, d, strconv.Itoa(att[i])))
		}
	}

	for _, dir := range candidates {
		path := filepath.Join(dir, MetadataFile)
		ok, err := afero.Exists(s.fs, path)
		if err != nil {
			return nil, "", fmt.Errorf("store: stat %s: %w", path, err)
		}
		if !ok {
			continue
		}
		entries, err := s.LoadMetadata(path)
		return entries, path, err
	}
	return []history.Entry{}, "", nil
}

// earlierDates lists date directories before date, newest first.
func (s *Store) earlierDates(userDir, date string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, userDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", userDir, err)
	}
	var out []string
	for _, fi := range infos {
		if !fi.IsDir() {
			continue
		}
		if _, err := time.Parse("2006-01-02", fi.Name()); err != nil {
			continue
		}
		if fi.Name() < date {
			out = append(out, fi.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// LoadMetadata reads a metadata file. A missing file is an empty history.
func (s *Store) LoadMetadata(path string) ([]history.Entry, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []history.Entry{}, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var entries []history.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}

// SaveMetadata rewrites rp's metadata file.
func (s *Store) SaveMetadata(rp RecordingPath, entries []history.Entry) error {
	if entries == nil {
		entries = []history.Entry{}
	}
	return s.writeJSON(filepath.Join(rp.Dir, MetadataFile), entries)
}

// SaveError writes rp's error file.
func (s *Store) SaveError(rp RecordingPath, rec history.ErrorRecord) error {
	return s.writeJSON(filepath.Join(rp.Dir, ErrorsFile), rec)
}

// SaveCookies rewrites the account's cookie file.
func (s *Store) SaveCookies(username string, cookies []browser.Cookie) error {
	dir, err := s.UserDir(username)
	if err != nil {
		return err
	}
	if cookies == nil {
		cookies = []browser.Cookie{}
	}
	return s.writeJSON(filepath.Join(dir, CookiesFile), cookies)
}

// LoadCookies reads the account's cookie file.
func (s *Store) LoadCookies(username string) ([]browser.Cookie, error) {
	dir, err := s.UserDir(username)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(dir, CookiesFile))
	if err != nil {
		return nil, fmt.Errorf("store: read cookies: %w", err)
	}
	var cookies []browser.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("store: parse cookies: %w", err)
	}
	return cookies, nil
}

// SaveCaptcha stores the CAPTCHA image for the operator and returns its path.
func (s *Store) SaveCaptcha(rp RecordingPath, image []byte) (string, error) {
	path := filepath.Join(rp.Dir, CaptchaFile)
	if err := WriteFileAtomic(s.fs, path, image); err != nil {
		return "", err
	}
	return path, nil
}

// SaveArtifact writes the n-th recording of the run as n.wav.
func (s *Store) SaveArtifact(rp RecordingPath, n int, data []byte) (string, error) {
	path := filepath.Join(rp.Dir, strconv.Itoa(n)+".wav")
	if err := WriteFileAtomic(s.fs, path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(s.fs, path, append(data, '\n'))
}
