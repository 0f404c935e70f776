// Package exiftool reads and writes embedded media metadata through the
// exiftool command-line program.
package exiftool

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tag names read and written by keepsake.
const (
	TagCreateDate          = "CreateDate"
	TagGPSLatitude         = "GPSLatitude"
	TagGPSLongitude        = "GPSLongitude"
	TagIFD0DateTime        = "IFD0:DateTime"
	TagDateTimeOriginal    = "ExifIFD:DateTimeOriginal"
	TagDateTimeDigitized   = "ExifIFD:DateTimeDigitized"
	TagOffsetTimeOriginal  = "OffsetTimeOriginal"
	TagGPSLatitudeRef      = "GPSLatitudeRef"
	TagGPSLongitudeRef     = "GPSLongitudeRef"
	TagQTCreationDate      = "QuickTime:CreationDate"
	TagQTTrackCreateDate   = "QuickTime:TrackCreateDate"
	TagQTMediaCreateDate   = "QuickTime:MediaCreateDate"
	TagQTTimeZone          = "QuickTime:TimeZone"
	TagQTGPSCoordinates    = "QuickTime:GPSCoordinates"
	TagXMPGPSLatitude      = "XMP:GPSLatitude"
	TagXMPGPSLongitude     = "XMP:GPSLongitude"
	TagQTLocationLatitude  = "QuickTime:LocationLatitude"
	TagQTLocationLongitude = "QuickTime:LocationLongitude"
)

// ReadTags is the fixed, ordered tag list requested on every read.
var ReadTags = []string{
	TagCreateDate,
	TagGPSLatitude,
	TagGPSLongitude,
	TagIFD0DateTime,
	TagDateTimeOriginal,
	TagDateTimeDigitized,
	TagOffsetTimeOriginal,
	TagGPSLatitudeRef,
	TagGPSLongitudeRef,
	TagQTCreationDate,
	TagQTTrackCreateDate,
	TagQTMediaCreateDate,
	TagQTTimeZone,
	TagQTGPSCoordinates,
	TagXMPGPSLatitude,
	TagXMPGPSLongitude,
	TagQTLocationLatitude,
	TagQTLocationLongitude,
}

// DefaultBinary is the program looked up on PATH.
const DefaultBinary = "exiftool"

// updatedMarker is printed by exiftool after a successful single-file write.
const updatedMarker = "1 image files updated"

// ErrNotUpdated is returned when exiftool ran but did not report an update.
var ErrNotUpdated = errors.New("exiftool: file not updated")

// Tag is one name=value assignment for a write.
type Tag struct {
	Name  string
	Value string
}

// Reader returns the raw tag map for a file. Absent tags are omitted.
type Reader interface {
	ReadTags(ctx context.Context, path string) (map[string]string, error)
}

// Writer assigns tags to a file in place.
type Writer interface {
	WriteTags(ctx context.Context, path string, tags []Tag) error
}

// ReadWriter combines Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}

// Tool runs one exiftool process per call.
type Tool struct {
	Binary  string
	Timeout time.Duration
}

// New returns a Tool using binary (or DefaultBinary when empty).
func New(binary string, timeout time.Duration) *Tool {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Tool{Binary: binary, Timeout: timeout}
}

// Available reports whether the binary can be found.
func (t *Tool) Available() error {
	if _, err := exec.LookPath(t.Binary); err != nil {
		return fmt.Errorf("exiftool: %s not found on PATH: %w", t.Binary, err)
	}
	return nil
}

// Version returns the exiftool version string.
func (t *Tool) Version(ctx context.Context) (string, error) {
	out, err := t.run(ctx, "-ver")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ReadTags implements Reader.
func (t *Tool) ReadTags(ctx context.Context, path string) (map[string]string, error) {
	out, err := t.run(ctx, ReadArgs(path)...)
	if err != nil {
		return nil, err
	}
	return ParseTabular(out, ReadTags)
}

// WriteTags implements Writer.
func (t *Tool) WriteTags(ctx context.Context, path string, tags []Tag) error {
	out, err := t.run(ctx, WriteArgs(path, tags)...)
	if err != nil {
		return err
	}
	return checkUpdated(out)
}

func (t *Tool) run(ctx context.Context, args ...string) (string, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, t.Binary, args...) //nolint:gosec
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("exiftool: %w: %s", err, msg)
	}
	return stdout.String(), nil
}

// ReadArgs builds the argument list for a tabular read of ReadTags.
func ReadArgs(path string) []string {
	args := make([]string, 0, len(ReadTags)+3)
	args = append(args, "-T")
	for _, name := range ReadTags {
		args = append(args, "-"+name)
	}
	return append(args, "--", path)
}

// WriteArgs builds the argument list assigning tags to path in place.
func WriteArgs(path string, tags []Tag) []string {
	args := make([]string, 0, len(tags)+3)
	for _, tag := range tags {
		args = append(args, "-"+tag.Name+"="+tag.Value)
	}
	return append(args, "-overwrite_original", "--", path)
}

// ParseTabular parses the first line of -T output into a map keyed by names.
// exiftool prints "-" for tags that are not present; those are omitted.
func ParseTabular(out string, names []string) (map[string]string, error) {
	line, _, _ := strings.Cut(strings.TrimRight(out, "\r\n"), "\n")
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return nil, errors.New("exiftool: empty output")
	}
	fields := strings.Split(line, "\t")
	if len(fields) != len(names) {
		return nil, fmt.Errorf("exiftool: got %d columns, want %d", len(fields), len(names))
	}
	tags := make(map[string]string, len(names))
	for i, name := range names {
		v := strings.TrimSpace(fields[i])
		if v == "" || v == "-" {
			continue
		}
		tags[name] = v
	}
	return tags, nil
}

func checkUpdated(out string) error {
	if strings.Contains(out, updatedMarker) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotUpdated, strings.TrimSpace(out))
}
