// CLAUDE:SUMMARY Starts and stops the Xvfb display used by headful runs.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// xvfbReady bounds how long the X server has to create its socket.
const xvfbReady = 5 * time.Second

// display is a private Xvfb server for headful stealth mode.
type display struct {
	name string
	cmd  *exec.Cmd
	log  *slog.Logger
}

// startDisplay runs Xvfb on name (":99") and returns once its socket
// exists under /tmp/.X11-unix.
func startDisplay(ctx context.Context, name string, log *slog.Logger) (*display, error) {
	cmd := exec.Command("Xvfb", name, "-screen", "0", "1920x1080x24", "-nolisten", "tcp", "-ac")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("browser: xvfb %s: %w", name, err)
	}
	d := &display{name: name, cmd: cmd, log: log}

	socket := "/tmp/.X11-unix/X" + strings.TrimPrefix(name, ":")
	deadline := time.Now().Add(xvfbReady)
	for {
		if _, err := os.Stat(socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			d.stop()
			return nil, fmt.Errorf("browser: xvfb %s: no socket after %s", name, xvfbReady)
		}
		select {
		case <-ctx.Done():
			d.stop()
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	log.Info("browser: xvfb started", "display", name, "pid", cmd.Process.Pid)
	return d, nil
}

func (d *display) stop() {
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
	}
	d.log.Info("browser: xvfb stopped", "display", d.name)
}
