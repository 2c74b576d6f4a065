package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// errInputClosed is returned once the reader hit EOF.
var errInputClosed = errors.New("scanner input closed")

// lineSource reads a keyboard-wedge scanner: every decoded code arrives as
// one line of text. Lines are pumped in the background so a pending read can
// be abandoned when a scan is cancelled.
type lineSource struct {
	lines chan string
	done  chan struct{}
	once  sync.Once
	err   error
}

func newLineSource(r io.Reader) *lineSource {
	s := &lineSource{lines: make(chan string), done: make(chan struct{})}
	go s.pump(r)
	return s
}

func (s *lineSource) pump(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.lines <- strings.TrimSpace(sc.Text())
	}
	s.err = sc.Err()
	s.once.Do(func() { close(s.done) })
}

// Next blocks until a line arrives or ctx is done.
func (s *lineSource) Next(ctx context.Context) (string, error) {
	select {
	case line := <-s.lines:
		return line, nil
	case <-s.done:
		if s.err != nil {
			return "", s.err
		}
		return "", errInputClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// lineDecoder adapts lineSource to one scan. Close only detaches it; the
// underlying reader stays open for the next scan.
type lineDecoder struct {
	src    *lineSource
	closed bool
}

func (d *lineDecoder) Decode(ctx context.Context) (string, error) {
	if d.closed {
		return "", errors.New("decoder closed")
	}
	for {
		line, err := d.src.Next(ctx)
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

func (d *lineDecoder) Close() error {
	d.closed = true
	return nil
}
