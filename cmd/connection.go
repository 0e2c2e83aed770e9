// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/ergostat/pkg/capture"
	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
	"github.com/Thermoquad/ergostat/pkg/pm/pmsim"
)

// ErrReadTimeout is returned when no report arrives within the read timeout
var ErrReadTimeout = errors.New("read timeout")

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// reportComplete reports whether buf holds a report up to its stop flag
func reportComplete(buf []byte) bool {
	return len(buf) > 2 && bytes.IndexByte(buf[2:], csafe.StopFlag) >= 0
}

// SerialTransport carries reports over a serial port
type SerialTransport struct {
	port serial.Port
}

func (s *SerialTransport) Write(p []byte, timeout time.Duration) (int, error) {
	// go.bug.st/serial has no write deadline; writes block until drained
	return s.port.Write(p)
}

// Read collects bytes until a stop flag arrives, maxLen bytes were read or
// the timeout expires
func (s *SerialTransport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, maxLen)
	n := 0
	deadline := time.Now().Add(timeout)

	for n < maxLen && !reportComplete(buf[:n]) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
		k, err := s.port.Read(buf[n:])
		if err != nil {
			return nil, err
		}
		if k == 0 {
			break
		}
		n += k
	}

	if n == 0 {
		return nil, ErrReadTimeout
	}
	return buf[:n], nil
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

// WebSocketTransport carries one report per binary WebSocket message
type WebSocketTransport struct {
	conn   *websocket.Conn
	closed bool // a failed read leaves the connection unusable
}

func (w *WebSocketTransport) Write(p []byte, timeout time.Duration) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketTransport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	if w.closed {
		return nil, ErrConnectionClosed
	}
	if err := w.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: %v", ErrReadTimeout, err)
			}
			return nil, err
		}

		// Text frames are bridge chatter, not reports
		if messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) > maxLen {
			data = data[:maxLen]
		}
		return data, nil
	}
}

func (w *WebSocketTransport) Close() error {
	return w.conn.Close()
}

// OpenSerialTransport opens a serial port connection
func OpenSerialTransport(portName string, baudRate int) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialTransport{port: port}, nil
}

// OpenWebSocketTransport opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketTransport(wsURL, username, password string, skipSSLVerify bool) (*WebSocketTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketTransport{conn: conn}, nil
}

// GetPassword retrieves the password from the environment or prompts for it
func GetPassword() (string, error) {
	if pw := os.Getenv("ERGOSTAT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// simulatedRowing is the workload of the --simulate monitor
const (
	simulatedWatts = 180
	simulatedSPM   = 24
)

// OpenTransport opens the link selected by the configuration: the simulated
// monitor, a WebSocket bridge or a serial port. With record set, every
// exchange is also written to a capture file.
func OpenTransport(cfg *Config, logger *zap.Logger) (pm.Transport, string, error) {
	var (
		t    pm.Transport
		info string
	)

	switch {
	case cfg.Simulate:
		t = pmsim.New(pmsim.WithLogger(logger.Named("pmsim")), pmsim.WithRowing(simulatedWatts, simulatedSPM))
		info = "Simulated PM"

	case cfg.URL != "":
		password := ""
		if cfg.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		ws, err := OpenWebSocketTransport(cfg.URL, cfg.Username, password, cfg.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		t = ws
		info = fmt.Sprintf("WebSocket: %s", cfg.URL)

	case cfg.Port != "":
		port, err := OpenSerialTransport(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, "", err
		}
		t = port
		info = fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud)

	default:
		return nil, "", fmt.Errorf("one of --port, --url or --simulate must be specified")
	}

	if cfg.Record == "" {
		return t, info, nil
	}

	f, err := os.Create(cfg.Record)
	if err != nil {
		closeTransport(t)
		return nil, "", fmt.Errorf("failed to create capture file: %w", err)
	}
	rec, err := capture.NewRecorder(t, f,
		capture.WithSource(info),
		capture.WithLogger(logger.Named("capture")))
	if err != nil {
		f.Close()
		closeTransport(t)
		return nil, "", err
	}
	return rec, info + " (recording to " + cfg.Record + ")", nil
}

func closeTransport(t pm.Transport) {
	if c, ok := t.(interface{ Close() error }); ok {
		c.Close()
	}
}

// OpenSession opens the configured link and starts a session on it
func OpenSession(cfg *Config, logger *zap.Logger, opts ...pm.Option) (*pm.Session, string, error) {
	t, info, err := OpenTransport(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	opts = append([]pm.Option{
		pm.WithLogger(logger.Named("pm")),
		pm.WithFrameGap(cfg.Gap),
		pm.WithTimeouts(cfg.WriteTimeout, cfg.ReadTimeout),
	}, opts...)

	logger.Debug("session opened", zap.String("link", info))
	return pm.NewSession(t, opts...), info, nil
}
