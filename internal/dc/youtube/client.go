package youtube

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/time/rate"
)

// OutputTemplate lays artifacts out as <work dir>/<uploader>/<title>.<ext>.
const OutputTemplate = "%(uploader)s/%(title)s.%(ext)s"

const watchURL = "https://www.youtube.com/watch?v="

// Options configures a Client.
type Options struct {
	Executable       string
	WorkDir          string
	CookieFile       string
	FormatPreference string
	ExtractAudio     bool
	AudioFormat      string
	Timeout          time.Duration
	// Rate is the number of yt-dlp invocations allowed per second.
	Rate  float64
	Burst int
}

// Client is a transfer.Extractor backed by the yt-dlp binary.
type Client struct {
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}

	if opts.Burst < 1 {
		opts.Burst = 1
	}

	return &Client{
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Burst),
	}
}

// ListItems returns the item URLs of a channel, in channel order.
func (c *Client) ListItems(ctx context.Context, channel transfer.ChannelRef) ([]transfer.ItemRef, error) {
	cmd := c.command().FlatPlaylist().DumpJSON()

	stdout, err := c.run(ctx, "list_items", string(channel), cmd)
	if err != nil {
		return nil, err
	}

	items, err := parseEntries(stdout)
	if err != nil {
		return nil, &transfer.ExtractionError{Operation: "list_items", Ref: string(channel), Err: err}
	}

	logctx.LoggerFromContext(ctx).Debug("listed channel items", "channel", channel, "count", len(items))

	return items, nil
}

// Resolve reads the item's metadata without downloading it and computes where
// the audio file will land and the key it is stored under.
func (c *Client) Resolve(ctx context.Context, item transfer.ItemRef) (*transfer.Media, error) {
	cmd := c.command().DumpJSON()

	stdout, err := c.run(ctx, "resolve", string(item), cmd)
	if err != nil {
		return nil, err
	}

	media, err := parseMedia(stdout, c.opts.WorkDir, c.opts.AudioFormat)
	if err != nil {
		return nil, &transfer.ExtractionError{Operation: "resolve", Ref: string(item), Err: err}
	}

	media.Item = item

	return media, nil
}

// Fetch downloads the item's audio into the work directory.
func (c *Client) Fetch(ctx context.Context, media *transfer.Media) error {
	cmd := c.command().NoProgress()
	if c.opts.ExtractAudio {
		cmd = cmd.ExtractAudio().AudioFormat(c.opts.AudioFormat)
	}

	_, err := c.run(ctx, "fetch", string(media.Item), cmd)

	return err
}

// command carries the flags shared by every invocation so that Resolve and
// Fetch agree on the output filename.
func (c *Client) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		Output(filepath.Join(c.opts.WorkDir, OutputTemplate))

	if c.opts.Executable != "" {
		cmd = cmd.SetExecutable(c.opts.Executable)
	}

	if c.opts.FormatPreference != "" {
		cmd = cmd.Format(c.opts.FormatPreference)
	}

	if c.opts.CookieFile != "" {
		cmd = cmd.Cookies(c.opts.CookieFile)
	}

	return cmd
}

func (c *Client) run(ctx context.Context, operation, ref string, cmd *ytdlp.Command) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &transfer.ExtractionError{Operation: operation, Ref: ref, Err: err}
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	// On a non-zero exit the returned error already carries yt-dlp's stderr.
	res, err := cmd.Run(ctx, ref)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", c.opts.Timeout, err)
		}

		return "", &transfer.ExtractionError{Operation: operation, Ref: ref, Err: err}
	}

	return res.Stdout, nil
}

type entry struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type info struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
	Channel  string `json:"channel"`
	Filename string `json:"_filename"`
}

// parseEntries reads one JSON object per line as printed by --flat-playlist -j.
func parseEntries(stdout string) ([]transfer.ItemRef, error) {
	var items []transfer.ItemRef

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to decode playlist entry: %w", err)
		}

		switch {
		case e.URL != "":
			items = append(items, transfer.ItemRef(e.URL))
		case e.ID != "":
			items = append(items, transfer.ItemRef(watchURL+e.ID))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist entries: %w", err)
	}

	return items, nil
}

// parseMedia builds the Media for the first JSON object of stdout. The local
// path is yt-dlp's own filename with the extension swapped for the audio
// container produced by post-processing.
func parseMedia(stdout, workDir, audioFormat string) (*transfer.Media, error) {
	line := firstLine(stdout)
	if line == "" {
		return nil, errors.New("empty metadata output")
	}

	var meta info
	if err := json.Unmarshal([]byte(line), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	uploader := meta.Uploader
	if uploader == "" {
		uploader = meta.Channel
	}

	localPath := meta.Filename
	if localPath == "" {
		localPath = filepath.Join(workDir, sanitize(uploader, "NA"), sanitize(meta.Title, meta.ID)+".tmp")
	}

	if audioFormat != "" {
		localPath = strings.TrimSuffix(localPath, filepath.Ext(localPath)) + "." + audioFormat
	}

	key, err := filepath.Rel(workDir, localPath)
	if err != nil || strings.HasPrefix(key, "..") {
		key = filepath.Base(localPath)
	}

	return &transfer.Media{
		ID:        meta.ID,
		Uploader:  uploader,
		Title:     meta.Title,
		LocalPath: localPath,
		Key:       filepath.ToSlash(key),
	}, nil
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

func sanitize(s, fallback string) string {
	s = strings.TrimSpace(unsafeChars.Replace(s))
	if s == "" || s == "." || s == ".." {
		return fallback
	}

	return s
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}

	return ""
}
