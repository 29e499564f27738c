package domain

import (
	"testing"
	"time"
)

func TestConversionResolveAttributionPrefersCurrent(t *testing.T) {
	c := NewConversion(1, 10, 20, time.Now())

	current := UTMSet{"source": "google"}
	last := UTMSet{"source": "newsletter"}
	first := UTMSet{"source": "direct-campaign"}

	currentTouch, lastTouch, firstTouch := int64(3), int64(2), int64(1)
	c.ResolveAttribution(current, last, first, &currentTouch, &lastTouch, &firstTouch)

	if !equalUTMSet(c.UTMAttribution, current) {
		t.Errorf("UTMAttribution = %v, want %v", c.UTMAttribution, current)
	}
	if c.AttributedTouchID == nil || *c.AttributedTouchID != currentTouch {
		t.Errorf("AttributedTouchID = %v, want %d", c.AttributedTouchID, currentTouch)
	}
}

func TestConversionResolveAttributionFallsBackToLast(t *testing.T) {
	c := NewConversion(1, 10, 20, time.Now())

	current := UTMSet{}
	last := UTMSet{"source": "newsletter"}
	first := UTMSet{"source": "direct-campaign"}

	lastTouch, firstTouch := int64(2), int64(1)
	c.ResolveAttribution(current, last, first, nil, &lastTouch, &firstTouch)

	if !equalUTMSet(c.UTMAttribution, last) {
		t.Errorf("UTMAttribution = %v, want %v", c.UTMAttribution, last)
	}
	if c.AttributedTouchID == nil || *c.AttributedTouchID != lastTouch {
		t.Errorf("AttributedTouchID = %v, want %d", c.AttributedTouchID, lastTouch)
	}
}

func TestConversionResolveAttributionFallsBackToFirst(t *testing.T) {
	c := NewConversion(1, 10, 20, time.Now())

	first := UTMSet{"source": "direct-campaign"}
	firstTouch := int64(1)
	c.ResolveAttribution(UTMSet{}, UTMSet{}, first, nil, nil, &firstTouch)

	if !equalUTMSet(c.UTMAttribution, first) {
		t.Errorf("UTMAttribution = %v, want %v", c.UTMAttribution, first)
	}
	if c.AttributedTouchID == nil || *c.AttributedTouchID != firstTouch {
		t.Errorf("AttributedTouchID = %v, want %d", c.AttributedTouchID, firstTouch)
	}
}

func equalUTMSet(a, b UTMSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
