package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
	"github.com/hazyhaar/vhist/internal/browser/browsertest"
	"github.com/hazyhaar/vhist/internal/config"
)

var sel = config.Default().Selectors

type entrySpec struct {
	id         string
	transcript string
	fallback   string
	fields     []string
	noExpand   bool
}

func buildPage(specs ...entrySpec) (*browsertest.Page, []*browsertest.Node) {
	page := browsertest.NewPage()
	var expanders []*browsertest.Node
	for _, s := range specs {
		n := browsertest.NewNode("")
		n.Attrs["id"] = s.id
		if s.transcript != "" {
			n.Add(sel.Transcript, browsertest.NewNode("  "+s.transcript+" "))
		}
		if s.fallback != "" {
			n.Add(sel.NotUnderstood, browsertest.NewNode(s.fallback))
		}
		fields := s.fields
		if fields == nil {
			fields = []string{"Today", "9:00 AM", "Kitchen Echo"}
		}
		for _, f := range fields {
			n.Add(sel.InfoField, browsertest.NewNode(f))
		}
		exp := browsertest.NewNode("")
		if !s.noExpand {
			n.Add(sel.Expand, exp)
		}
		expanders = append(expanders, exp)
		page.Root.Add(sel.Entry, n)
	}
	return page, expanders
}

func entries(t *testing.T, x *Extractor, p *browsertest.Page) []browser.Element {
	t.Helper()
	els, err := x.Entries(context.Background(), p)
	require.NoError(t, err)
	return els
}

func TestExtract_AllNew(t *testing.T) {
	page, exps := buildPage(
		entrySpec{id: "d1", transcript: "play jazz"},
		entrySpec{id: "d2", transcript: "what time is it", fields: []string{"Yesterday", "8:15 PM", "Bedroom"}},
	)
	x := New(config.Default(), nil)

	res, err := x.Extract(context.Background(), entries(t, x, page), nil, false)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, res.New)
	assert.Equal(t, []int{0, 1}, res.Expanded)
	assert.Equal(t, []history.Entry{
		{Message: "play jazz", Date: "Today", Time: "9:00 AM", Device: "Kitchen Echo", DivID: "d1"},
		{Message: "what time is it", Date: "Yesterday", Time: "8:15 PM", Device: "Bedroom", DivID: "d2"},
	}, res.Entries)
	for _, e := range exps {
		assert.Equal(t, 1, e.Clicks)
	}
}

func TestExtract_FiveEntriesThreeNew(t *testing.T) {
	var specs []entrySpec
	for i := 0; i < 5; i++ {
		specs = append(specs, entrySpec{id: fmt.Sprintf("d%d", i), transcript: fmt.Sprintf("utterance %d", i)})
	}
	page, exps := buildPage(specs...)
	old := []history.Entry{
		{Message: "utterance 1 (old)", Date: "Mon", Time: "1:00 AM", Device: "Echo", DivID: "d1", AudioID: "A1"},
		{Message: "utterance 3 (old)", Date: "Mon", Time: "3:00 AM", Device: "Echo", DivID: "d3", AudioID: "A3"},
	}
	x := New(config.Default(), nil)

	res, err := x.Extract(context.Background(), entries(t, x, page), old, false)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, res.New)
	assert.Equal(t, []int{0, 2, 4}, res.Expanded)
	require.Len(t, res.Entries, 5)
	assert.Equal(t, old[0], res.Entries[1])
	assert.Equal(t, old[1], res.Entries[3])
	assert.Equal(t, []int{1, 0, 1, 0, 1}, []int{exps[0].Clicks, exps[1].Clicks, exps[2].Clicks, exps[3].Clicks, exps[4].Clicks})
}

func TestExtract_DuplicateCarriedByteIdentical(t *testing.T) {
	page, exps := buildPage(entrySpec{id: "X", transcript: "fresh text on page"})
	old := []history.Entry{{Message: "stored text", Date: "Jan 1", Time: "noon", Device: "Dot", DivID: "X", AudioID: "AX"}}
	x := New(config.Default(), nil)

	res, err := x.Extract(context.Background(), entries(t, x, page), old, false)
	require.NoError(t, err)

	assert.Empty(t, res.New)
	want, _ := json.Marshal(old[0])
	have, _ := json.Marshal(res.Entries[0])
	assert.Equal(t, string(want), string(have))
	assert.Equal(t, 0, exps[0].Clicks, "known entry must not be expanded")
}

func TestExtract_DownloadDuplicates(t *testing.T) {
	page, _ := buildPage(entrySpec{id: "X", transcript: "fresh text on page"})
	old := []history.Entry{{Message: "stored text", DivID: "X", AudioID: "AX"}}
	x := New(config.Default(), nil)

	res, err := x.Extract(context.Background(), entries(t, x, page), old, true)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, res.New)
	assert.Equal(t, "fresh text on page", res.Entries[0].Message)
	assert.Empty(t, res.Entries[0].AudioID)
}

func TestExtract_FallbackTranscript(t *testing.T) {
	page, _ := buildPage(entrySpec{id: "d1", fallback: "Audio could not be understood"})
	x := New(config.Default(), nil)

	res, err := x.Extract(context.Background(), entries(t, x, page), nil, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.New)
	assert.Equal(t, "Audio could not be understood", res.Entries[0].Message)
}

func TestExtract_PlaceholderWhenNoTextAtAll(t *testing.T) {
	page, _ := buildPage(entrySpec{id: "d1"})
	x := New(config.Default(), nil)

	res, err := x.Extract(context.Background(), entries(t, x, page), nil, false)
	require.NoError(t, err)
	assert.Equal(t, history.NotUnderstood, res.Entries[0].Message)
}

func TestExtract_MissingInfoFieldsIsLayoutChange(t *testing.T) {
	page, _ := buildPage(
		entrySpec{id: "d1", transcript: "ok"},
		entrySpec{id: "d2", transcript: "broken", fields: []string{"Today", "9:00 AM"}},
	)
	x := New(config.Default(), nil)

	_, err := x.Extract(context.Background(), entries(t, x, page), nil, false)
	require.ErrorIs(t, err, ErrLayoutChanged)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestExtract_MissingExpandIsSoft(t *testing.T) {
	page, exps := buildPage(
		entrySpec{id: "d1", transcript: "one"},
		entrySpec{id: "d2", transcript: "two", noExpand: true},
		entrySpec{id: "d3", transcript: "three"},
	)
	x := New(config.Default(), nil)

	res, err := x.Extract(context.Background(), entries(t, x, page), nil, false)
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "two", res.Entries[1].Message)
	assert.Equal(t, []int{0, 1, 2}, res.New)
	assert.Equal(t, []int{0, 2}, res.Expanded)
	assert.Equal(t, []int{1, 0, 1}, []int{exps[0].Clicks, exps[1].Clicks, exps[2].Clicks})
}

func TestExtract_Empty(t *testing.T) {
	x := New(config.Default(), nil)
	res, err := x.Extract(context.Background(), nil, nil, false)
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Empty(t, res.New)
	assert.Empty(t, res.Expanded)
}
