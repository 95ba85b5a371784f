package storage

import (
	"context"
	"fmt"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
)

// Pull fetches a previously published backup snapshot tree (git, S3,
// HTTP, or a local path — whatever go-getter's detector chain resolves
// src as) into worldDir/backups/<name>. go-getter has no upload
// primitive, so this is the only remote backup operation: publishing a
// snapshot remotely is left to the operator's own tooling.
func Pull(ctx context.Context, src, worldDir, name string) (string, error) {
	dest := filepath.Join(worldDir, "backups", name)

	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dest,
		Mode: getter.ClientModeDir,
	}

	if err := client.Get(); err != nil {
		return "", fmt.Errorf("storage: pull backup from %s: %w", src, err)
	}

	return dest, nil
}
