// Package ipc carries structured messages between the tool and its worker
// processes as newline-delimited JSON over a pair of pipes
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// EnvChannelFDs names the inherited file descriptors ("read,write") a
// worker uses to reach its supervisor
const EnvChannelFDs = "EMBARK_IPC_FDS"

// ErrClosed is returned when sending on a closed channel
var ErrClosed = errors.New("ipc channel closed")

const maxMessageSize = 4 * 1024 * 1024

// Conn is one end of a message channel. Messages are delivered in send
// order
type Conn struct {
	r io.ReadCloser
	w io.WriteCloser

	writeMu sync.Mutex
	enc     *json.Encoder
	scanner *bufio.Scanner

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewConn wraps a reader and writer as a message channel
func NewConn(r io.ReadCloser, w io.WriteCloser) *Conn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	return &Conn{
		r:       r,
		w:       w,
		enc:     json.NewEncoder(w),
		scanner: scanner,
	}
}

// FromEnv opens the channel described by EnvChannelFDs in a worker process
func FromEnv() (*Conn, error) {
	value := os.Getenv(EnvChannelFDs)
	if value == "" {
		return nil, fmt.Errorf("%s is not set, not running as a worker", EnvChannelFDs)
	}

	readStr, writeStr, ok := strings.Cut(value, ",")
	if !ok {
		return nil, fmt.Errorf("invalid %s value %q", EnvChannelFDs, value)
	}
	readFD, err := strconv.Atoi(readStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read fd: %w", err)
	}
	writeFD, err := strconv.Atoi(writeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid write fd: %w", err)
	}

	r := os.NewFile(uintptr(readFD), "ipc-read")
	w := os.NewFile(uintptr(writeFD), "ipc-write")
	if r == nil || w == nil {
		return nil, fmt.Errorf("ipc file descriptors %d,%d are not open", readFD, writeFD)
	}
	return NewConn(r, w), nil
}

// Send writes one message
func (c *Conn) Send(msg Message) error {
	if c.Closed() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive blocks for the next message. It returns io.EOF once the other
// side has gone away
func (c *Conn) Receive() (Message, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return Message{}, fmt.Errorf("failed to decode message: %w", err)
		}
		return msg, nil
	}
	if err := c.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

// Closed reports whether Close has been called
func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close releases both ends of the channel
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		werr := c.w.Close()
		rerr := c.r.Close()
		err = errors.Join(werr, rerr)
	})
	return err
}
