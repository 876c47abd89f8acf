package db

import (
	"context"
	"testing"
)

func TestConnectRejectsMalformedURL(t *testing.T) {
	if _, err := Connect(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected error for malformed database url")
	}
}
