package utils

import (
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RemoteLogger fans log lines out to every TCP client connected to Port.
// The TUI owns the terminal, so this is how a running client is observed:
//
//	nc localhost <port>
//
// It implements zapcore.WriteSyncer.
type RemoteLogger struct {
	Port     int
	Listener net.Listener

	mu      sync.Mutex
	clients []net.Conn
}

var _ zapcore.WriteSyncer = (*RemoteLogger)(nil)

// NewRemoteLogger starts a TCP listener on the given port.
func NewRemoteLogger(port int) (*RemoteLogger, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	rl := &RemoteLogger{
		Port:     ln.Addr().(*net.TCPAddr).Port,
		Listener: ln,
	}
	go rl.acceptClients()
	return rl, nil
}

// acceptClients accepts incoming TCP connections until the listener closes.
func (rl *RemoteLogger) acceptClients() {
	for {
		conn, err := rl.Listener.Accept()
		if err != nil {
			return
		}
		rl.mu.Lock()
		rl.clients = append(rl.clients, conn)
		rl.mu.Unlock()
	}
}

// Write sends p to all connected clients, dropping the ones that fail.
func (rl *RemoteLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	alive := rl.clients[:0]
	for _, conn := range rl.clients {
		if _, err := conn.Write(p); err != nil {
			_ = conn.Close()
			continue
		}
		alive = append(alive, conn)
	}
	rl.clients = alive
	return len(p), nil
}

func (rl *RemoteLogger) Sync() error { return nil }

func (rl *RemoteLogger) Close() error {
	err := rl.Listener.Close()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for _, conn := range rl.clients {
		_ = conn.Close()
	}
	rl.clients = nil
	return err
}

// NewLogger builds a JSON zap logger writing to all writers at the given
// level. With no writers it returns a no-op logger.
func NewLogger(level string, writers ...io.Writer) (*zap.Logger, error) {
	if len(writers) == 0 {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, w := range writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.NewMultiWriteSyncer(syncers...),
		lvl,
	)
	return zap.New(core, zap.AddCaller()), nil
}
