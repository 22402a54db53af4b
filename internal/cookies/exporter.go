package cookies

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lrstanley/go-ytdlp"
)

// DefaultSiteURL is visited while exporting so yt-dlp loads the browser's
// session for the video platform.
const DefaultSiteURL = "https://www.youtube.com"

// Exporter writes a Netscape cookie jar to dest.
type Exporter interface {
	Export(ctx context.Context, dest string) error
}

// BrowserExporter pulls the cookies of a local browser profile through yt-dlp.
type BrowserExporter struct {
	Browser    string
	Executable string
	SiteURL    string
}

// Export writes the jar next to dest and renames it into place, so a failed
// export leaves the previous jar untouched.
func (e *BrowserExporter) Export(ctx context.Context, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create temporary cookie jar: %w", err)
	}

	tmpPath := tmp.Name()
	tmp.Close()

	defer os.Remove(tmpPath)

	cmd := ytdlp.New().
		CookiesFromBrowser(e.Browser).
		Cookies(tmpPath).
		SkipDownload().
		NoWarnings()

	if e.Executable != "" {
		cmd = cmd.SetExecutable(e.Executable)
	}

	siteURL := e.SiteURL
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}

	if res, err := cmd.Run(ctx, siteURL); err != nil {
		if res != nil && res.Stderr != "" {
			return fmt.Errorf("failed to export cookies from %s: %w: %s", e.Browser, err, res.Stderr)
		}

		return fmt.Errorf("failed to export cookies from %s: %w", e.Browser, err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to stat exported cookie jar: %w", err)
	}

	if info.Size() == 0 {
		return fmt.Errorf("exported cookie jar from %s is empty", e.Browser)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move cookie jar into place: %w", err)
	}

	return nil
}
