package fetcher

import (
	"errors"
	"testing"
)

func TestValidateURL_RejectsNonHTTPScheme(t *testing.T) {
	if err := ValidateURL("file:///etc/passwd", true); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestValidateURL_RejectsEmptyHostname(t *testing.T) {
	if err := ValidateURL("http://", true); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestValidateURL_RejectsLoopback(t *testing.T) {
	if err := ValidateURL("http://127.0.0.1/admin", true); !errors.Is(err, ErrPrivateIP) {
		t.Fatalf("expected ErrPrivateIP, got %v", err)
	}
}

func TestValidateURL_RejectsPrivateRange(t *testing.T) {
	if err := ValidateURL("http://10.0.0.5/internal", true); !errors.Is(err, ErrPrivateIP) {
		t.Fatalf("expected ErrPrivateIP, got %v", err)
	}
}

func TestValidateURL_AllowsPrivateWhenNotDenied(t *testing.T) {
	if err := ValidateURL("http://127.0.0.1/admin", false); err != nil {
		t.Fatalf("expected nil error when denyPrivateIPs is false, got %v", err)
	}
}

func TestValidateURL_AllowsPublicHTTPS(t *testing.T) {
	if err := ValidateURL("https://example.com/article", false); err != nil {
		t.Fatalf("unexpected error for public https url: %v", err)
	}
}
