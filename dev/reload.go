// SPDX-License-Identifier: MPL-2.0

package dev

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Feed is a websocket endpoint that tells open previews to reload after a
// local change reached the bundle.
type Feed struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string][]*feedConn // bundleID -> connections
}

type feedConn struct {
	conn net.Conn
	id   string
	mu   sync.Mutex
}

type reloadMessage struct {
	Type     string `json:"type"`
	BundleID string `json:"bundleId"`
}

// StartFeed listens on a random localhost port.
func StartFeed(logger *slog.Logger) (*Feed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start reload feed: %w", err)
	}
	f := &Feed{
		listener: listener,
		logger:   logger,
		clients:  map[string][]*feedConn{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handle)
	f.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := f.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("Reload feed error", slog.Any("error", err))
		}
	}()
	return f, nil
}

func (f *Feed) Port() int {
	return f.listener.Addr().(*net.TCPAddr).Port
}

// URL is the address previews subscribe to.
func (f *Feed) URL() string {
	return fmt.Sprintf("ws://localhost:%d/ws", f.Port())
}

func (f *Feed) handle(w http.ResponseWriter, r *http.Request) {
	bundleID := r.URL.Query().Get("bundleId")
	if bundleID == "" {
		http.Error(w, "bundleId parameter required", http.StatusBadRequest)
		return
	}
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		f.logger.Debug("Reload feed upgrade failed", slog.Any("error", err))
		return
	}
	c := &feedConn{conn: conn, id: fmt.Sprintf("%s-%d", bundleID, time.Now().UnixNano())}

	f.mu.Lock()
	f.clients[bundleID] = append(f.clients[bundleID], c)
	f.mu.Unlock()
	f.logger.Debug("Preview connected", slog.String("bundleId", bundleID))

	go func() {
		defer func() {
			conn.Close()
			f.remove(bundleID, c.id)
		}()
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()
}

func (f *Feed) remove(bundleID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns := f.clients[bundleID]
	for i, c := range conns {
		if c.id == id {
			f.clients[bundleID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(f.clients[bundleID]) == 0 {
		delete(f.clients, bundleID)
	}
}

// Clients returns the number of previews subscribed to bundleID.
func (f *Feed) Clients(bundleID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients[bundleID])
}

// Broadcast sends a reload message to the previews of bundleID and reports
// whether any were connected.
func (f *Feed) Broadcast(bundleID string) bool {
	f.mu.RLock()
	conns := append([]*feedConn(nil), f.clients[bundleID]...)
	f.mu.RUnlock()
	if len(conns) == 0 {
		return false
	}
	msg, err := json.Marshal(reloadMessage{Type: "reload", BundleID: bundleID})
	if err != nil {
		return false
	}
	for _, c := range conns {
		go func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			// Closed connections are cleaned up by their reader.
			_ = wsutil.WriteServerMessage(c.conn, ws.OpText, msg)
		}()
	}
	return true
}

// Close stops the server and drops every connection.
func (f *Feed) Close() error {
	f.mu.Lock()
	for _, conns := range f.clients {
		for _, c := range conns {
			c.conn.Close()
		}
	}
	f.clients = map[string][]*feedConn{}
	f.mu.Unlock()
	return f.server.Close()
}
