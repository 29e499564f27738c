package domain

import "testing"

func TestDefaultConfidenceAndSource(t *testing.T) {
	tests := []struct {
		identityType   IdentityType
		wantConfidence float64
		wantSource     LinkSource
	}{
		{IdentityTypeUserID, ConfidenceUserID, LinkSourceLogin},
		{IdentityTypeEmailHash, ConfidenceEmailHash, LinkSourceLogin},
		{IdentityTypeCookie, ConfidenceCookie, LinkSourceSDK},
		{IdentityTypeGACID, ConfidenceOther, LinkSourceSDK},
	}

	for _, tt := range tests {
		t.Run(string(tt.identityType), func(t *testing.T) {
			gotConfidence, gotSource := DefaultConfidenceAndSource(tt.identityType)
			if gotConfidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", gotConfidence, tt.wantConfidence)
			}
			if gotSource != tt.wantSource {
				t.Errorf("source = %v, want %v", gotSource, tt.wantSource)
			}
		})
	}
}

func TestCustomerSetFirstTouchOnlyWhenUnset(t *testing.T) {
	c := NewCustomer(1, nil)

	c.SetFirstTouch(100)
	if c.FirstTouchID == nil || *c.FirstTouchID != 100 {
		t.Fatalf("SetFirstTouch() did not set initial value")
	}

	c.SetFirstTouch(200)
	if *c.FirstTouchID != 100 {
		t.Errorf("SetFirstTouch() overwrote an existing value: got %d, want 100", *c.FirstTouchID)
	}
}

func TestCustomerSetLastTouchAlwaysOverwrites(t *testing.T) {
	c := NewCustomer(1, nil)

	c.SetLastTouch(100)
	c.SetLastTouch(200)

	if c.LastTouchID == nil || *c.LastTouchID != 200 {
		t.Errorf("SetLastTouch() = %v, want 200", c.LastTouchID)
	}
}
