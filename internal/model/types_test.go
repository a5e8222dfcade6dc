package model

import (
	"testing"
	"time"
)

func TestQuoteExpiredBoundary(t *testing.T) {
	received := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	q := Quote{ReceivedAt: received, TTLSeconds: 30}

	if q.Expired(received.Add(29 * time.Second)) {
		t.Fatalf("quote inside its TTL must not be expired")
	}
	if !q.Expired(received.Add(30 * time.Second)) {
		t.Fatalf("quote must be expired at exactly receivedAt + ttl")
	}
	if !q.Expired(received.Add(31 * time.Second)) {
		t.Fatalf("quote past its TTL must be expired")
	}
}

func TestQuoteWithoutTTLNeverExpires(t *testing.T) {
	q := Quote{ReceivedAt: time.Now().Add(-24 * time.Hour), TTLSeconds: 0}
	if q.Expired(time.Now()) {
		t.Fatalf("zero-TTL quotes must never expire")
	}
}
