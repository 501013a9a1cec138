// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwsigner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Bridge runs closures on a single goroutine locked to one OS thread. Native
// USB stacks that only accept calls from the thread that owns them are driven
// through it: callers hand over a closure and wait on a one-shot reply.
type Bridge struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	closeOnce sync.Once
}

// NewBridge starts the bridge thread.
func NewBridge() *Bridge {
	b := &Bridge{
		tasks: make(chan func()),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Bridge) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(b.done)

	for {
		select {
		case task := <-b.tasks:
			task()
		case <-b.quit:
			return
		}
	}
}

// Close stops the bridge after the running task, if any, returns.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() { close(b.quit) })
	<-b.done
	return nil
}

// Do runs fn on the bridge thread and waits for it.
func (b *Bridge) Do(ctx context.Context, fn func() error) error {
	_, err := bridgeCall(ctx, b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

type bridgeResult[T any] struct {
	value T
	err   error
}

// bridgeCall dispatches fn to the bridge thread. ctx bounds the wait only: once
// the thread picked fn up it runs to completion and a late result is dropped.
func bridgeCall[T any](ctx context.Context, b *Bridge, fn func() (T, error)) (T, error) {
	var zero T

	reply := make(chan bridgeResult[T], 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				reply <- bridgeResult[T]{err: fmt.Errorf("usb bridge task panicked: %v", r)}
			}
		}()
		v, err := fn()
		reply <- bridgeResult[T]{value: v, err: err}
	}

	select {
	case b.tasks <- task:
	case <-b.quit:
		return zero, ErrBridgeClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
