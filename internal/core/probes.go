package core

import (
	"context"
	"fmt"
	"os"
)

// ArchiveDirProbe checks that report archives can be written to Dir. An
// empty Dir checks os.TempDir().
type ArchiveDirProbe struct {
	Dir string
}

func (p ArchiveDirProbe) Name() string { return "archive_dir" }

func (p ArchiveDirProbe) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := p.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("archive dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
