// Command bitcaskd runs the storage engine behind the length-prefixed TCP
// protocol internal/protocol and internal/server implement.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"

	"github.com/Alfurquan/bitcaskpy/internal/config"
	"github.com/Alfurquan/bitcaskpy/internal/events"
	"github.com/Alfurquan/bitcaskpy/internal/protocol"
	"github.com/Alfurquan/bitcaskpy/internal/server"
	"github.com/Alfurquan/bitcaskpy/internal/store"
)

const (
	defaultDir  = "./data"
	defaultPort = 9999
)

func main() {
	dir, port, opts := loadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := opts.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	s, err := store.Open(dir, opts, events.NewZapSink(logger))
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer s.Close()

	h := &handler{store: s, log: logger}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		onAcceptError := func(err error) { logger.Warn("accept failed", zap.Error(err)) }
		if err := server.Start(ctx, port, h.handleConn, onAcceptError); err != nil {
			logger.Error("server stopped abruptly", zap.Error(err))
		}
	}()

	logger.Info("bitcaskd started", zap.String("dir", dir), zap.Int("port", port))

	listenForInterruptOrKill()
	cancel()
	logger.Info("bitcaskd shutting down")
}

func loadConfig() (dir string, port int, opts config.Options) {
	dirFlag := flag.String("dir", defaultDir, "data directory")
	portFlag := flag.Int("port", defaultPort, "TCP port to listen on")
	syncFlag := flag.Bool("sync", false, "fsync every append")
	fsyncIntervalFlag := flag.Int("fsync-interval", config.DefaultFsyncIntervalSeconds, "periodic fsync interval in seconds")
	maxSegmentSizeFlag := flag.Int("max-segment-size", config.DefaultMaxSegmentSize, "max bytes per segment log")
	maxEntriesFlag := flag.Int("max-entries-per-segment", config.DefaultMaxEntriesPerSegment, "max records per segment")
	maxKeySizeFlag := flag.Int("max-key-size", config.DefaultMaxKeySize, "max key size in bytes")
	maxValueSizeFlag := flag.Int("max-value-size", config.DefaultMaxValueSize, "max value size in bytes")
	flag.Parse()

	opts = config.Options{
		Sync:                 *syncFlag,
		FsyncIntervalSeconds: *fsyncIntervalFlag,
		MaxSegmentSize:       *maxSegmentSizeFlag,
		MaxEntriesPerSegment: *maxEntriesFlag,
		MaxKeySize:           *maxKeySizeFlag,
		MaxValueSize:         *maxValueSizeFlag,
	}
	dir = *dirFlag
	port = *portFlag

	if v := os.Getenv("BITCASK_DIR"); v != "" {
		dir = v
	}
	if v := os.Getenv("BITCASK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	if v := os.Getenv("BITCASK_SYNC"); v != "" {
		opts.Sync = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BITCASK_FSYNC_INTERVAL_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.FsyncIntervalSeconds = n
		}
	}
	if v := os.Getenv("BITCASK_MAX_SEGMENT_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxSegmentSize = n
		}
	}
	if v := os.Getenv("BITCASK_MAX_ENTRIES_PER_SEGMENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxEntriesPerSegment = n
		}
	}
	if v := os.Getenv("BITCASK_MAX_KEY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxKeySize = n
		}
	}
	if v := os.Getenv("BITCASK_MAX_VALUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxValueSize = n
		}
	}

	return dir, port, opts
}

func listenForInterruptOrKill() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

// handler bridges the wire protocol to the store, assigning each
// connection a fallback request id that is threaded into the store's
// events for commands on that connection which carry no id of their own.
type handler struct {
	store *store.Store
	log   *zap.Logger

	nextConnID atomic.Uint64
}

func (h *handler) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := fmt.Sprintf("conn-%d", h.nextConnID.Add(1))

	for {
		cmd, err := protocol.DecodeCommand(conn)
		if err != nil {
			return
		}
		h.dispatch(conn, cmd, connID)
	}
}

// dispatch resolves the request id events for this command will carry:
// the client's own id if it sent one, otherwise connID. The response
// always echoes back whatever id was actually used.
func (h *handler) dispatch(conn net.Conn, cmd *protocol.Command, connID string) {
	requestID := cmd.RequestID
	if requestID == "" {
		requestID = connID
	}
	scoped := h.store.WithRequestID(requestID)

	switch strings.ToLower(cmd.Cmd) {
	case "ping":
		h.reply(conn, "PONG!", requestID)
	case "set":
		h.handleSet(conn, scoped, cmd.Key, cmd.Val, requestID)
	case "get":
		h.handleGet(conn, scoped, cmd.Key, requestID)
	case "delete":
		h.handleDelete(conn, scoped, cmd.Key, requestID)
	case "exists":
		h.handleExists(conn, scoped, cmd.Key, requestID)
	case "count":
		h.handleCount(conn, requestID)
	case "list", "keys":
		h.handleKeys(conn, requestID)
	case "stats":
		h.handleStats(conn, requestID)
	case "help":
		h.reply(conn, helpText, requestID)
	default:
		h.reply(conn, "Invalid Command", requestID)
	}
}

func (h *handler) handleSet(conn net.Conn, scoped *store.Scoped, key, value, requestID string) {
	if err := scoped.Put(key, []byte(value)); err != nil {
		h.log.Warn("set failed", zap.String("key", key), zap.Error(err))
		h.reply(conn, "error: "+err.Error(), requestID)
		return
	}
	h.reply(conn, "ok", requestID)
}

func (h *handler) handleGet(conn net.Conn, scoped *store.Scoped, key, requestID string) {
	value, ok, err := scoped.Get(key)
	if err != nil {
		h.log.Warn("get failed", zap.String("key", key), zap.Error(err))
		h.reply(conn, "error: "+err.Error(), requestID)
		return
	}
	if !ok {
		h.reply(conn, "nil", requestID)
		return
	}
	h.reply(conn, string(value), requestID)
}

func (h *handler) handleDelete(conn net.Conn, scoped *store.Scoped, key, requestID string) {
	if err := scoped.Delete(key); err != nil {
		h.log.Warn("delete failed", zap.String("key", key), zap.Error(err))
		h.reply(conn, "error: "+err.Error(), requestID)
		return
	}
	h.reply(conn, "ok", requestID)
}

func (h *handler) handleExists(conn net.Conn, scoped *store.Scoped, key, requestID string) {
	_, ok, err := scoped.Get(key)
	if err != nil {
		h.reply(conn, "error: "+err.Error(), requestID)
		return
	}
	if ok {
		h.reply(conn, "true", requestID)
		return
	}
	h.reply(conn, "false", requestID)
}

func (h *handler) handleCount(conn net.Conn, requestID string) {
	n, err := h.store.Len()
	if err != nil {
		h.reply(conn, "error: "+err.Error(), requestID)
		return
	}
	h.reply(conn, strconv.Itoa(n), requestID)
}

func (h *handler) handleKeys(conn net.Conn, requestID string) {
	keys, err := h.store.Keys()
	if err != nil {
		h.reply(conn, "error: "+err.Error(), requestID)
		return
	}
	if len(keys) == 0 {
		h.reply(conn, "nil", requestID)
		return
	}
	h.reply(conn, strings.Join(keys, "\n"), requestID)
}

func (h *handler) handleStats(conn net.Conn, requestID string) {
	n, err := h.store.Len()
	if err != nil {
		h.reply(conn, "error: "+err.Error(), requestID)
		return
	}
	h.reply(conn, fmt.Sprintf("keys=%d", n), requestID)
}

func (h *handler) reply(conn net.Conn, msg, requestID string) {
	encoded, err := protocol.EncodeResponse(msg, requestID)
	if err != nil {
		h.log.Error("encode response", zap.Error(err))
		return
	}
	if _, err := conn.Write(encoded); err != nil {
		h.log.Debug("client disconnected", zap.Error(err))
	}
}

const helpText = `Available Commands:

PING                 Check if the server is alive.
SET <key> <value>    Store a value for the given key.
GET <key>            Retrieve the value for a key, or nil.
DELETE <key>         Delete a key.
EXISTS <key>         Check if a key exists.
COUNT                Return the total number of live keys.
KEYS                 List every live key.
STATS                Show store-level counters.
HELP                 Show this help message.`
