package captions

import (
	"path"
	"sort"
	"strings"
)

// ImageExtensions are matched case-insensitively.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".avif"}

// Pair links an image to its caption file. CaptionFile is empty when the
// image has none yet.
type Pair struct {
	Image       string `json:"image"`
	CaptionFile string `json:"caption_file"`
}

// IsImage reports whether rel has one of ImageExtensions.
func IsImage(rel string) bool {
	ext := strings.ToLower(path.Ext(rel))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func stem(rel string) string {
	return strings.TrimSuffix(rel, path.Ext(rel))
}

// PairImages groups listed files into image/caption pairs. Each image
// takes the first non-image file, in sorted order, that shares its path
// stem. When several images share a stem only the first is kept.
// The result is sorted by image path.
func PairImages(files []string) []Pair {
	sortedFiles := append([]string(nil), files...)
	sort.Strings(sortedFiles)

	byStem := make(map[string]*Pair)
	var order []string
	var others []string
	for _, f := range sortedFiles {
		if !IsImage(f) {
			others = append(others, f)
			continue
		}
		s := stem(f)
		if _, ok := byStem[s]; ok {
			continue
		}
		byStem[s] = &Pair{Image: f}
		order = append(order, s)
	}

	for _, f := range others {
		if p, ok := byStem[stem(f)]; ok && p.CaptionFile == "" {
			p.CaptionFile = f
		}
	}

	pairs := make([]Pair, 0, len(order))
	for _, s := range order {
		pairs = append(pairs, *byStem[s])
	}
	return pairs
}

// DefaultCaptionPath is where a caption for image goes when none exists.
func DefaultCaptionPath(image string) string {
	return stem(image) + ".txt"
}
