package videoproc

import (
	"strconv"

	"github.com/fpang/media-pipeline/internal/router"
)

// Bitrates for VIDEO_COMPRESS, in bits per second.
var bitrates = map[string]int{
	"low":    500_000,
	"medium": 1_000_000,
	"high":   2_000_000,
}

// Bitrate returns the target video bitrate for quality, defaulting to medium.
func Bitrate(quality string) int {
	if b, ok := bitrates[quality]; ok {
		return b
	}
	return bitrates["medium"]
}

const (
	audioBitrate    = "128k"
	mp3Bitrate      = "192k"
	thumbnailSeek   = "1"
	watermarkFontPx = 36
)

func frameArgs(in, out, seek string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", seek,
		"-i", in,
		"-frames:v", "1",
		"-q:v", "2",
		"-f", "image2",
		out,
	}
}

// watermarkArgs reads the text from textFile so no drawtext escaping is
// needed for user-supplied text.
func watermarkArgs(in, out, fontFile, textFile string) []string {
	filter := "drawtext=fontfile=" + fontFile +
		":textfile=" + textFile +
		":fontcolor=white@0.5" +
		":fontsize=" + strconv.Itoa(watermarkFontPx) +
		":x=(w-text_w)/2:y=(h-text_h)/2"
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-vf", filter,
		"-c:v", "libx264", "-preset", "veryfast",
		"-c:a", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

func compressArgs(in, out string, bitrate int) []string {
	b := strconv.Itoa(bitrate)
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-c:v", "libx264",
		"-b:v", b,
		"-maxrate", b,
		"-bufsize", strconv.Itoa(bitrate * 2),
		"-preset", "medium",
		"-c:a", "aac", "-b:a", audioBitrate,
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

func audioArgs(in, out string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-vn",
		"-c:a", "libmp3lame", "-b:a", mp3Bitrate,
		"-f", "mp3",
		out,
	}
}

func previewArgs(in, out string, seconds int) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-t", strconv.Itoa(seconds),
		"-c:v", "libx264", "-preset", "veryfast",
		"-c:a", "aac", "-b:a", audioBitrate,
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

func outputExt(contentType string) string {
	switch contentType {
	case router.ContentTypeJPEG:
		return ".jpg"
	case router.ContentTypeMP3:
		return ".mp3"
	}
	return ".mp4"
}
