package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
)

var day = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func newStore() (*Store, afero.Fs) {
	fs := afero.NewMemMapFs()
	return New(fs, "/out"), fs
}

func TestNewRecordingPath_FirstRun(t *testing.T) {
	s, fs := newStore()
	rp, err := s.NewRecordingPath("alice", day)
	require.NoError(t, err)

	assert.Equal(t, 0, rp.Attempt)
	assert.Equal(t, "2024-05-02", rp.Date)
	assert.Equal(t, filepath.Join("/out", "alice", "2024-05-02", "0"), rp.Dir)
	ok, _ := afero.DirExists(fs, rp.Dir)
	assert.True(t, ok)
}

func TestNewRecordingPath_IncrementsPastExisting(t *testing.T) {
	s, fs := newStore()
	base := filepath.Join("/out", "alice", "2024-05-02")
	for _, d := range []string{"0", "1", "2"} {
		require.NoError(t, fs.MkdirAll(filepath.Join(base, d), 0o755))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(base, d, "0.wav"), []byte(d), 0o644))
	}
	// stray non-numeric entries are ignored
	require.NoError(t, fs.MkdirAll(filepath.Join(base, "scratch"), 0o755))

	rp, err := s.NewRecordingPath("alice", day)
	require.NoError(t, err)
	assert.Equal(t, 3, rp.Attempt)

	for _, d := range []string{"0", "1", "2"} {
		data, err := afero.ReadFile(fs, filepath.Join(base, d, "0.wav"))
		require.NoError(t, err)
		assert.Equal(t, d, string(data), "attempt %s must be untouched", d)
	}
}

func TestNewRecordingPath_Gaps(t *testing.T) {
	s, fs := newStore()
	base := filepath.Join("/out", "alice", "2024-05-02")
	require.NoError(t, fs.MkdirAll(filepath.Join(base, "0"), 0o755))
	require.NoError(t, fs.MkdirAll(filepath.Join(base, "7"), 0o755))

	rp, err := s.NewRecordingPath("alice", day)
	require.NoError(t, err)
	assert.Equal(t, 8, rp.Attempt)
}

func TestNewRecordingPath_RejectsTraversal(t *testing.T) {
	s, _ := newStore()
	_, err := s.NewRecordingPath("../../etc", day)
	assert.Error(t, err)
}

func TestMetadataRoundtrip(t *testing.T) {
	s, _ := newStore()
	rp, err := s.NewRecordingPath("alice", day)
	require.NoError(t, err)

	entries := []history.Entry{
		{Message: "play jazz", Date: "Today", Time: "9:01 AM", Device: "Kitchen", DivID: "d1", AudioID: "a1"},
		{Message: history.NotUnderstood, Date: "Today", Time: "8:00 AM", Device: "Kitchen", DivID: "d2"},
	}
	require.NoError(t, s.SaveMetadata(rp, entries))

	got, err := s.LoadMetadata(filepath.Join(rp.Dir, MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestLoadMetadata_MissingIsEmpty(t *testing.T) {
	s, _ := newStore()
	got, err := s.LoadMetadata("/out/nobody/metadata.json")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPreviousMetadata(t *testing.T) {
	s, fs := newStore()
	write := func(date, attempt, divID string) {
		dir := filepath.Join("/out", "alice", date, attempt)
		data, _ := json.Marshal([]history.Entry{{DivID: divID}})
		require.NoError(t, fs.MkdirAll(dir, 0o755))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, MetadataFile), data, 0o644))
	}

	t.Run("no history", func(t *testing.T) {
		rp, err := s.NewRecordingPath("bob", day)
		require.NoError(t, err)
		got, path, err := s.PreviousMetadata(rp)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, path)
	})

	write("2024-04-28", "0", "older")
	write("2024-04-30", "0", "apr30-0")
	write("2024-04-30", "1", "apr30-1")

	t.Run("earlier date, highest attempt", func(t *testing.T) {
		rp, err := s.NewRecordingPath("alice", day)
		require.NoError(t, err)
		got, _, err := s.PreviousMetadata(rp)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "apr30-1", got[0].DivID)
	})

	t.Run("same date lower attempt wins", func(t *testing.T) {
		write("2024-05-02", "1", "may2-1")
		rp := RecordingPath{Dir: "/out/alice/2024-05-02/2", Username: "alice", Date: "2024-05-02", Attempt: 2}
		got, path, err := s.PreviousMetadata(rp)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "may2-1", got[0].DivID)
		assert.Equal(t, filepath.Join("/out/alice/2024-05-02/1", MetadataFile), path)
	})

	t.Run("failed attempt without metadata is skipped", func(t *testing.T) {
		require.NoError(t, fs.MkdirAll("/out/alice/2024-05-02/2", 0o755))
		rp := RecordingPath{Dir: "/out/alice/2024-05-02/3", Username: "alice", Date: "2024-05-02", Attempt: 3}
		got, _, err := s.PreviousMetadata(rp)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "may2-1", got[0].DivID)
	})
}

func TestSaveError(t *testing.T) {
	s, fs := newStore()
	rp, err := s.NewRecordingPath("alice", day)
	require.NoError(t, err)

	require.NoError(t, s.SaveError(rp, history.ErrorRecord{"alice": {Error: "boom", Stack: "main.go:1"}}))

	data, err := afero.ReadFile(fs, filepath.Join(rp.Dir, ErrorsFile))
	require.NoError(t, err)
	var rec history.ErrorRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "boom", rec["alice"].Error)
}

func TestCookiesRoundtrip(t *testing.T) {
	s, _ := newStore()
	cookies := []browser.Cookie{{Name: "session-id", Value: "123", Domain: ".amazon.com", Path: "/", Secure: true}}
	require.NoError(t, s.SaveCookies("alice", cookies))

	got, err := s.LoadCookies("alice")
	require.NoError(t, err)
	assert.Equal(t, cookies, got)
}

func TestSaveArtifactAndCaptcha(t *testing.T) {
	s, fs := newStore()
	rp, err := s.NewRecordingPath("alice", day)
	require.NoError(t, err)

	p0, err := s.SaveArtifact(rp, 0, []byte("RIFF0"))
	require.NoError(t, err)
	p1, err := s.SaveArtifact(rp, 1, []byte("RIFF1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rp.Dir, "0.wav"), p0)
	assert.Equal(t, filepath.Join(rp.Dir, "1.wav"), p1)

	cp, err := s.SaveCaptcha(rp, []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rp.Dir, CaptchaFile), cp)

	infos, err := afero.ReadDir(fs, rp.Dir)
	require.NoError(t, err)
	for _, fi := range infos {
		assert.NotContains(t, fi.Name(), ".tmp-", "temp files must not linger")
	}
}
