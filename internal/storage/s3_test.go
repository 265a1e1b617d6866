package storage

import "testing"

func TestParseURL(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://b/k.png", "b", "k.png", true},
		{"s3://b/dir/", "b", "dir/", true},
		{"s3://b/deep/dir/x.jpg", "b", "deep/dir/x.jpg", true},
		{"s3://b", "b", "", true},
		{"s3:///k", "", "", false},
		{"/local/path.png", "", "", false},
		{"S3://b/k", "", "", false},
	}
	for _, tt := range tests {
		b, k, ok := ParseURL(tt.in)
		if b != tt.bucket || k != tt.key || ok != tt.ok {
			t.Errorf("ParseURL(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.in, b, k, ok, tt.bucket, tt.key, tt.ok)
		}
		if IsURL(tt.in) != tt.ok {
			t.Errorf("IsURL(%q) = %v", tt.in, !tt.ok)
		}
	}
}
