package mediatypes

import "testing"

func TestGetFileType(t *testing.T) {
	tests := []struct {
		ext  string
		want FileType
	}{
		{".jpg", FileTypeImage},
		{".JPG", FileTypeImage},
		{".jpeg", FileTypeImage},
		{".png", FileTypeImage},
		{".heic", FileTypeImage},
		{".mp4", FileTypeVideo},
		{".MOV", FileTypeVideo},
		{".mkv", FileTypeVideo},
		{".xmp", FileTypeSidecar},
		{".thm", FileTypeSidecar},
		{".txt", FileTypeOther},
		{".pdf", FileTypeOther},
		{"", FileTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := GetFileType(tt.ext); got != tt.want {
				t.Errorf("GetFileType(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		path string
		want FileType
	}{
		{"/photos/vacation/IMG_0001.JPG", FileTypeImage},
		{"clips/birthday.mov", FileTypeVideo},
		{"IMG_0001.xmp", FileTypeSidecar},
		{"notes.txt", FileTypeOther},
		{"noextension", FileTypeOther},
	}

	for _, tt := range tests {
		if got := TypeOf(tt.path); got != tt.want {
			t.Errorf("TypeOf(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".jpg", "image/jpeg"},
		{".MP4", "video/mp4"},
		{".webm", "video/webm"},
		{".unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := GetMimeType(tt.ext); got != tt.want {
			t.Errorf("GetMimeType(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestIsExtractable(t *testing.T) {
	if !IsExtractable(FileTypeImage) {
		t.Error("images should be extractable")
	}
	if !IsExtractable(FileTypeVideo) {
		t.Error("videos should be extractable")
	}
	if IsExtractable(FileTypeSidecar) {
		t.Error("sidecars should not be extractable")
	}
	if IsExtractable(FileTypeOther) {
		t.Error("other files should not be extractable")
	}
}
