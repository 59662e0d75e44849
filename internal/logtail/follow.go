// Package logtail prints the tail of a log file and follows it as it grows.
package logtail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultLines matches tail(1).
	DefaultLines        = 10
	defaultPollInterval = time.Second
	tailChunkSize       = 64 * 1024
)

// Options configures Follow.
type Options struct {
	// Lines is the number of existing lines printed before following. Zero
	// prints nothing, negative prints the whole file.
	Lines int
	// PollInterval bounds how long an append can go unnoticed when the
	// filesystem does not deliver change notifications.
	PollInterval time.Duration
}

// Tail returns the last n lines of the file at path, without trailing newlines.
// A negative n returns every line.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	lines, _, err := tailFrom(f, info.Size(), n)
	return lines, err
}

// tailFrom returns the last n lines of the first size bytes of r, together with
// any trailing bytes that are not yet terminated by a newline. An unterminated
// last line is also the final entry of lines. With n == 0 only the
// unterminated bytes are located.
func tailFrom(r io.ReaderAt, size int64, n int) ([]string, []byte, error) {
	if size == 0 {
		return nil, nil, nil
	}
	want := n
	if want == 0 {
		want = 1
	}
	start, err := lineStart(r, size, want)
	if err != nil {
		return nil, nil, err
	}

	data := make([]byte, size-start)
	if _, err := r.ReadAt(data, start); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("read log: %w", err)
	}
	var partial []byte
	if len(data) > 0 && data[len(data)-1] != '\n' {
		partial = append([]byte(nil), data[bytes.LastIndexByte(data, '\n')+1:]...)
	}
	if n == 0 {
		return nil, partial, nil
	}

	body := bytes.TrimSuffix(data, []byte{'\n'})
	chunks := bytes.Split(body, []byte{'\n'})
	lines := make([]string, 0, len(chunks))
	for _, line := range chunks {
		lines = append(lines, string(bytes.TrimSuffix(line, []byte{'\r'})))
	}
	return lines, partial, nil
}

// lineStart returns the offset of the first of the last n lines. A negative n
// selects the whole file.
func lineStart(r io.ReaderAt, size int64, n int) (int64, error) {
	if n < 0 {
		return 0, nil
	}
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("read log: %w", err)
	}
	// A trailing newline terminates the last line rather than starting a new one.
	offset := size
	if last[0] == '\n' {
		offset--
	}

	buf := make([]byte, tailChunkSize)
	count := 0
	for offset > 0 {
		chunk := int64(len(buf))
		if offset < chunk {
			chunk = offset
		}
		offset -= chunk
		if _, err := r.ReadAt(buf[:chunk], offset); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read log: %w", err)
		}
		for i := chunk - 1; i >= 0; i-- {
			if buf[i] != '\n' {
				continue
			}
			count++
			if count == n {
				return offset + i + 1, nil
			}
		}
	}
	return 0, nil
}

// Follow writes the last opts.Lines lines of path to w and then every line
// appended afterwards, until ctx is done. Cancellation is the normal way to
// stop following and yields a nil error. Neither the file nor its directory
// need exist yet; the file is picked up once created. Truncation or
// replacement restarts from the top.
func Follow(ctx context.Context, path string, w io.Writer, opts Options) error {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory so creation and rename of the file are observed.
	// Until the directory exists the ticker alone drives polling.
	dir := filepath.Dir(path)
	watching, err := addWatch(watcher, dir)
	if err != nil {
		return err
	}

	t := &follower{path: path, w: w}
	if err := t.open(opts.Lines); err != nil {
		return err
	}
	defer t.close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flush whatever landed before the interrupt.
			_ = t.poll()
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != filepath.Clean(path) {
				continue
			}
			if err := t.poll(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case <-ticker.C:
			if !watching {
				if watching, err = addWatch(watcher, dir); err != nil {
					return err
				}
			}
			if err := t.poll(); err != nil {
				return err
			}
		}
	}
}

// addWatch watches dir, reporting false without error while dir is missing.
func addWatch(watcher *fsnotify.Watcher, dir string) (bool, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := watcher.Add(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("watch %s: %w", dir, err)
	}
	return true, nil
}

type follower struct {
	path    string
	w       io.Writer
	f       *os.File
	info    os.FileInfo
	offset  int64
	partial []byte
}

// open attaches to the current file and prints its tail. A missing file is
// not an error.
func (t *follower) open(lines int) error {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log: %w", err)
	}
	tail, partial, err := tailFrom(f, info.Size(), lines)
	if err != nil {
		f.Close()
		return err
	}
	// An unterminated last line is held back until the rest of it arrives.
	if partial != nil && len(tail) > 0 {
		tail = tail[:len(tail)-1]
	}
	for _, line := range tail {
		if _, err := fmt.Fprintln(t.w, line); err != nil {
			f.Close()
			return err
		}
	}
	t.f, t.info, t.offset, t.partial = f, info, info.Size(), partial
	return nil
}

func (t *follower) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}

// poll copies any new complete lines to the writer.
func (t *follower) poll() error {
	current, err := os.Stat(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}

	switch {
	case t.f == nil:
		if err := t.reopen(); err != nil {
			return err
		}
	case !os.SameFile(t.info, current):
		// Replaced: drain the old file, then start over on the new one.
		if err := t.drain(); err != nil {
			return err
		}
		t.close()
		if err := t.reopen(); err != nil {
			return err
		}
	case current.Size() < t.offset:
		t.offset = 0
		t.partial = nil
	}
	return t.drain()
}

func (t *follower) reopen() error {
	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log: %w", err)
	}
	t.f, t.info, t.offset, t.partial = f, info, 0, nil
	return nil
}

func (t *follower) drain() error {
	if t.f == nil {
		return nil
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := t.f.ReadAt(buf, t.offset)
		if n > 0 {
			t.offset += int64(n)
			if werr := t.emit(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) || n == 0 {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read log: %w", err)
		}
	}
}

// emit writes complete lines and holds back a trailing partial line until its
// newline arrives.
func (t *follower) emit(chunk []byte) error {
	data := append(t.partial, chunk...)
	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		t.partial = data
		return nil
	}
	if _, err := t.w.Write(data[:idx+1]); err != nil {
		return err
	}
	t.partial = append([]byte(nil), data[idx+1:]...)
	return nil
}
