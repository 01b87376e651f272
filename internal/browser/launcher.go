package browser

import (
	"context"
	"errors"
)

// Launcher starts a dedicated browser per account run.
type Launcher struct {
	cfg Config
}

// NewLauncher returns a Launcher that builds every Manager from cfg.
func NewLauncher(cfg Config) *Launcher {
	return &Launcher{cfg: cfg}
}

// Launch starts Chrome and opens the account's tab. Closing the returned
// Surface closes the tab, the browser and any Xvfb display.
func (l *Launcher) Launch(ctx context.Context, userAgent string) (Surface, error) {
	cfg := l.cfg
	if userAgent != "" {
		cfg.UserAgent = userAgent
	}
	mgr := NewManager(cfg)
	if _, err := mgr.Start(ctx); err != nil {
		mgr.Close()
		return nil, err
	}
	page, err := OpenPage(ctx, mgr)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return &ownedPage{Page: page, mgr: mgr}, nil
}

type ownedPage struct {
	*Page
	mgr *Manager
}

func (o *ownedPage) Close() error {
	return errors.Join(o.Page.Close(), o.mgr.Close())
}
