package systemd

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "castbot/pkg/logx"
)

func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()
	dir, err := os.MkdirTemp("", "sdn")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func read(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 256)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNoSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	Ready(logx.Nop())
	Stopping(logx.Nop())
}

func TestReadyAndStopping(t *testing.T) {
	conn := listenNotify(t)

	Ready(logx.Nop())
	assert.Equal(t, "READY=1", read(t, conn))

	Status(logx.Nop(), "serving")
	assert.Equal(t, "STATUS=serving", read(t, conn))

	Stopping(logx.Nop())
	assert.Equal(t, "STOPPING=1", read(t, conn))
}

func TestWatchdogInterval(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	assert.Zero(t, WatchdogInterval())

	t.Setenv("WATCHDOG_USEC", "4000000")
	t.Setenv("WATCHDOG_PID", "")
	assert.Equal(t, 2*time.Second, WatchdogInterval())
}

func TestWatchdogPings(t *testing.T) {
	conn := listenNotify(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Watchdog(ctx, logx.Nop(), 20*time.Millisecond, func() bool { return true })
	}()

	assert.Equal(t, "WATCHDOG=1", read(t, conn))
	cancel()
	<-done
}
