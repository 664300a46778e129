package captions

import (
	"fmt"
	"testing"
)

func TestPairImages(t *testing.T) {
	files := []string{
		"cat.txt",
		"cat.PNG",
		"dog.jpg",
		"sub/bird.webp",
		"sub/bird.caption",
		"sub/bird.txt",
		"notes.md",
		"dup.png",
		"dup.jpg",
	}

	got := PairImages(files)
	want := []Pair{
		{Image: "cat.PNG", CaptionFile: "cat.txt"},
		{Image: "dog.jpg"},
		{Image: "dup.jpg"},
		{Image: "sub/bird.webp", CaptionFile: "sub/bird.caption"},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("PairImages()=%v\nwant=%v", got, want)
	}
}

func TestIsImage(t *testing.T) {
	for _, f := range []string{"a.jpg", "a.JPEG", "b/c.avif", "x.bmp"} {
		if !IsImage(f) {
			t.Fatalf("expected %q to be an image", f)
		}
	}
	for _, f := range []string{"a.txt", "jpg", "a.jpg.txt", ""} {
		if IsImage(f) {
			t.Fatalf("did not expect %q to be an image", f)
		}
	}
}

func TestDefaultCaptionPath(t *testing.T) {
	if got := DefaultCaptionPath("sub/img.01.png"); got != "sub/img.01.txt" {
		t.Fatalf("DefaultCaptionPath()=%q", got)
	}
}
