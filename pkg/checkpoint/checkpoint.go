// Package checkpoint reads and writes the offset checkpoint file kept in each
// task's state directory.
//
// The checkpoint file records, per changelog partition, the offset up to
// which the on-disk state is known to be consistent. On restart it decides
// how much changelog history must be replayed into each store.
//
// The format is deliberately simple and line-oriented:
//
//	0                       version
//	2                       number of entries
//	orders-changelog 0 41   topic, partition, offset
//	counts-changelog 0 2770
//
// Writes are atomic: the file is written to a temporary sibling, fsynced and
// renamed over the old checkpoint, so a crash never leaves a torn file.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Version is the only checkpoint file version this package understands.
const Version = 0

// FileName is the checkpoint file's name inside a task state directory.
const FileName = ".checkpoint"

// Changelog identifies one changelog partition.
type Changelog struct {
	Topic     string
	Partition int32
}

// String renders the changelog as "topic-partition" for diagnostics.
func (c Changelog) String() string {
	return fmt.Sprintf("%s-%d", c.Topic, c.Partition)
}

// Offsets maps changelog partitions to their last checkpointed offset.
type Offsets map[Changelog]int64

// File is a handle to a checkpoint file at a fixed path.
type File struct {
	path string
}

// NewFile creates a handle for the checkpoint file at path. The file itself
// need not exist yet.
func NewFile(path string) *File {
	return &File{path: path}
}

// ForTaskDir creates a handle for the conventional checkpoint location
// inside a task state directory.
func ForTaskDir(taskDir string) *File {
	return NewFile(filepath.Join(taskDir, FileName))
}

// Path returns the checkpoint file's path.
func (f *File) Path() string { return f.path }

// Read loads the checkpointed offsets. A missing file is not an error and
// reads as an empty map: it simply means nothing was ever checkpointed.
func (f *File) Read() (Offsets, error) {
	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return Offsets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file %s: %w", f.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	version, err := readIntLine(scanner)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint file %s: %w", f.path, err)
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported checkpoint file version %d in %s", version, f.path)
	}

	count, err := readIntLine(scanner)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint file %s: %w", f.path, err)
	}

	offsets := make(Offsets, count)
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("corrupt checkpoint file %s: expected %d entries, found %d", f.path, count, i)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			return nil, fmt.Errorf("corrupt checkpoint file %s: malformed entry %q", f.path, scanner.Text())
		}
		partition, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("corrupt checkpoint file %s: bad partition in %q", f.path, scanner.Text())
		}
		offset, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt checkpoint file %s: bad offset in %q", f.path, scanner.Text())
		}
		offsets[Changelog{Topic: fields[0], Partition: int32(partition)}] = offset
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file %s: %w", f.path, err)
	}
	return offsets, nil
}

// Write atomically replaces the checkpoint file with the given offsets.
// Entries are written in a stable order so files diff cleanly.
func (f *File) Write(offsets Offsets) error {
	tmp := f.path + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "%d\n", Version)
	fmt.Fprintf(w, "%d\n", len(offsets))
	for _, cl := range sortedChangelogs(offsets) {
		fmt.Fprintf(w, "%s %d %d\n", cl.Topic, cl.Partition, offsets[cl])
	}

	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync checkpoint temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file. Missing files are ignored.
func (f *File) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file %s: %w", f.path, err)
	}
	return nil
}

// Exists reports whether a checkpoint file is present on disk.
func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func readIntLine(scanner *bufio.Scanner) (int, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("unexpected end of file")
	}
	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", scanner.Text())
	}
	return n, nil
}

func sortedChangelogs(offsets Offsets) []Changelog {
	cls := make([]Changelog, 0, len(offsets))
	for cl := range offsets {
		cls = append(cls, cl)
	}
	sort.Slice(cls, func(i, j int) bool {
		if cls[i].Topic != cls[j].Topic {
			return cls[i].Topic < cls[j].Topic
		}
		return cls[i].Partition < cls[j].Partition
	})
	return cls
}
