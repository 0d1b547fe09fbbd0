package model

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	_ "github.com/viant/afsc/s3"
)

var fileSystem = afs.New()

// artifactURL turns bare paths into absolute file locations; anything with a
// scheme is handed to afs unchanged.
func artifactURL(location string) (string, error) {
	if strings.Contains(location, "://") {
		return location, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func readArtifact(ctx context.Context, location string) ([]byte, error) {
	url, err := artifactURL(location)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact location %q: %w", location, err)
	}
	data, err := fileSystem.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return data, nil
}
