package adlibrary

import (
	"errors"
	"testing"

	"github.com/adscope/adscope/internal/domain"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "library URL",
			raw:  "https://www.facebook.com/ads/library/?id=1165490822069878",
			want: "1165490822069878",
		},
		{
			name: "no www",
			raw:  "https://facebook.com/ads/library/?id=1165490822069878",
			want: "1165490822069878",
		},
		{
			name: "extra params",
			raw:  "https://www.facebook.com/ads/library/?active_status=all&id=1165490822069878&media_type=all",
			want: "1165490822069878",
		},
		{
			name: "missing id",
			raw:  "https://www.facebook.com/ads/library/?active_status=all",
			want: "",
		},
		{
			name: "non-numeric id",
			raw:  "https://www.facebook.com/ads/library/?id=abc",
			want: "",
		},
		{
			name: "wrong host",
			raw:  "https://example.com/ads/library/?id=1165490822069878",
			want: "",
		},
		{
			name: "wrong path",
			raw:  "https://www.facebook.com/profile/?id=1165490822069878",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseID(tt.raw); got != tt.want {
				t.Errorf("ParseID(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseInput_ArchiveID(t *testing.T) {
	in, err := ParseInput("1165490822069878")
	if err != nil {
		t.Fatalf("ParseInput failed: %v", err)
	}
	if in.Source != domain.SourceFacebook {
		t.Errorf("expected facebook source, got %s", in.Source)
	}
	if in.ArchiveID != "1165490822069878" {
		t.Errorf("ArchiveID = %q", in.ArchiveID)
	}
}

func TestParseInput_LibraryURL(t *testing.T) {
	in, err := ParseInput("  https://www.facebook.com/ads/library/?id=1165490822069878 ")
	if err != nil {
		t.Fatalf("ParseInput failed: %v", err)
	}
	if in.ArchiveID != "1165490822069878" {
		t.Errorf("ArchiveID = %q", in.ArchiveID)
	}
}

func TestParseInput_InstagramReel(t *testing.T) {
	in, err := ParseInput("https://www.instagram.com/reel/CxYzAb12345/")
	if err != nil {
		t.Fatalf("ParseInput failed: %v", err)
	}
	if in.Source != domain.SourceInstagram {
		t.Errorf("expected instagram source, got %s", in.Source)
	}
	if in.ReelURL == "" {
		t.Error("ReelURL should be set")
	}
}

func TestParseInput_Invalid(t *testing.T) {
	for _, raw := range []string{"", "not a url", "12ab34", "https://twitter.com/x/status/1"} {
		if _, err := ParseInput(raw); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("ParseInput(%q) should return ErrInvalidInput, got %v", raw, err)
		}
	}
}
