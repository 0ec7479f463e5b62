package utils

import (
	"testing"

	"github.com/user/cardshot/internal/entity"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    entity.ImageFormat
		wantErr bool
	}{
		{name: "png", path: "out/card.png", want: entity.FormatPNG},
		{name: "upper case png", path: "out/CARD.PNG", want: entity.FormatPNG},
		{name: "jpg", path: "card.jpg", want: entity.FormatJPEG},
		{name: "jpeg", path: "card.jpeg", want: entity.FormatJPEG},
		{name: "webp", path: "card.webp", want: entity.FormatWebP},
		{name: "gif rejected", path: "card.gif", wantErr: true},
		{name: "no extension rejected", path: "card", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestAcceptsQuality(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"card.png", false},
		{"card.PNG", false},
		{"card.Png", false},
		{"card.jpg", true},
		{"card.jpeg", true},
		{"card.webp", true},
	}

	for _, tt := range tests {
		if got := AcceptsQuality(tt.path); got != tt.want {
			t.Errorf("AcceptsQuality(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
