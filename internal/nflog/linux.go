// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package nflog

import (
	"context"
	"sync"

	golangnflog "github.com/florianl/go-nflog/v2"
	"golang.org/x/sys/unix"

	"github.com/matislovas/netcontrol-go/internal/errors"
	"github.com/matislovas/netcontrol-go/internal/logging"
)

// linuxChannel binds one github.com/florianl/go-nflog/v2 socket per group
// and fans the per-group callbacks into a single Go channel. The library
// previously sat in the teacher's go.mod unwired; this is its first real
// consumer.
type linuxChannel struct {
	logger *logging.Logger

	cancel context.CancelFunc
	events chan Event

	mu      sync.Mutex
	sockets []*golangnflog.Nflog
}

// Open binds a metadata-only copy-mode socket for every group in groups and
// returns a Channel multiplexing their notifications.
func Open(ctx context.Context, groups []uint16, logger *logging.Logger) (Channel, error) {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	logger = logger.WithComponent("nflog.linux")

	innerCtx, cancel := context.WithCancel(ctx)
	ch := &linuxChannel{
		logger: logger,
		cancel: cancel,
		events: make(chan Event, 256),
	}

	for _, group := range groups {
		group := group
		config := &golangnflog.Config{
			Group:       group,
			Copymode:    golangnflog.NfUlnlCopyMeta,
			ReadTimeout: 0,
			AfFamily:    unix.AF_INET,
		}

		sock, err := golangnflog.Open(config)
		if err != nil {
			ch.Close()
			return nil, errors.Wrapf(err, errors.KindLogChannel, "bind nflog group %d", group)
		}
		ch.sockets = append(ch.sockets, sock)

		hook := func(attr golangnflog.Attribute) int {
			if attr.Prefix == nil {
				return 0
			}
			select {
			case ch.events <- Event{Group: group, Prefix: *attr.Prefix}:
			default:
				logger.Warn("event dropped, consumer too slow", "group", group)
			}
			return 0
		}

		errFn := func(e error) int {
			logger.Warn("nflog read error", "group", group, "error", e)
			return 0
		}

		if err := sock.RegisterWithErrorFunc(innerCtx, hook, errFn); err != nil {
			ch.Close()
			return nil, errors.Wrapf(err, errors.KindLogChannel, "register nflog hook for group %d", group)
		}

		logger.Info("nflog group bound", "group", group)
	}

	return ch, nil
}

func (c *linuxChannel) Events() <-chan Event { return c.events }

func (c *linuxChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	var firstErr error
	for _, sock := range c.sockets {
		if err := sock.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.sockets = nil
	return firstErr
}
