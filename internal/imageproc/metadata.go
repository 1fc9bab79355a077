package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Info describes an image: decoded dimensions plus whatever EXIF is present.
type Info struct {
	Width       int
	Height      int
	Format      string
	CameraMake  string
	CameraModel string
	DateTaken   time.Time
	Latitude    float64
	Longitude   float64
	HasGPS      bool
}

// Inspect reads the image header and EXIF block without decoding pixels.
// Missing or unreadable EXIF is not an error.
func Inspect(data []byte) (*Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	info := &Info{Width: cfg.Width, Height: cfg.Height, Format: format}

	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("format", format).Msg("No EXIF metadata")
		return info, nil
	}

	// Priority: DateTimeOriginal > CreateDate > ModifyDate.
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		info.DateTaken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		info.DateTaken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		info.DateTaken = exifData.ModifyDate()
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		info.Latitude = gps.Latitude()
		info.Longitude = gps.Longitude()
		info.HasGPS = true
	}
	info.CameraMake = strings.TrimSpace(exifData.Make)
	info.CameraModel = strings.TrimSpace(exifData.Model)
	return info, nil
}

// Fields flattens Info into string metadata suitable for a media item.
func (i *Info) Fields() map[string]string {
	out := map[string]string{
		"width":  strconv.Itoa(i.Width),
		"height": strconv.Itoa(i.Height),
		"format": i.Format,
	}
	if i.CameraMake != "" {
		out["cameraMake"] = i.CameraMake
	}
	if i.CameraModel != "" {
		out["cameraModel"] = i.CameraModel
	}
	if !i.DateTaken.IsZero() {
		out["dateTaken"] = i.DateTaken.Format(time.RFC3339)
	}
	if i.HasGPS {
		out["latitude"] = strconv.FormatFloat(i.Latitude, 'f', 6, 64)
		out["longitude"] = strconv.FormatFloat(i.Longitude, 'f', 6, 64)
	}
	return out
}
