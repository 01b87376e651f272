// CLAUDE:SUMMARY Fails requests for configured resource types (images, fonts, media, stylesheets) on a Rod page.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockable maps config names to the resource types they cover. XHR,
// fetch, documents and scripts are absent on purpose: the audio identifier
// arrives on a fetch and the history page is script-rendered.
var blockable = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// blockSet resolves configured names. Unknown names are ignored.
func blockSet(names []string) map[proto.NetworkResourceType]bool {
	set := make(map[proto.NetworkResourceType]bool, len(names))
	for _, n := range names {
		if rt, ok := blockable[strings.ToLower(strings.TrimSpace(n))]; ok {
			set[rt] = true
		}
	}
	return set
}

// applyResourceBlocking fails requests whose type is in names. It returns
// nil when nothing is blockable. The caller must Stop the returned router.
func applyResourceBlocking(page *rod.Page, names []string) (*rod.HijackRouter, error) {
	set := blockSet(names)
	if len(set) == 0 {
		return nil, nil
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if set[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, wrap("hijack", err)
	}
	go router.Run()
	return router, nil
}
