package tmdb

import "strings"

const ImageBaseURL = "https://image.tmdb.org/t/p/"

type ImageSize string

const (
	PosterSmall  ImageSize = "w185"
	PosterMedium ImageSize = "w342"
	PosterLarge  ImageSize = "w500"

	BackdropSmall  ImageSize = "w300"
	BackdropMedium ImageSize = "w780"
	BackdropLarge  ImageSize = "w1280"

	Original ImageSize = "original"
)

// ImageURL builds the absolute URL for a TMDB image path (poster, backdrop,
// profile, logo) at the requested size. An empty string is returned for
// a nil or blank path so callers can fall back to a placeholder.
func ImageURL(path *string, size ImageSize) string {
	if path == nil || *path == "" {
		return ""
	}

	return ImageBaseURL + string(size) + "/" + strings.TrimPrefix(*path, "/")
}
