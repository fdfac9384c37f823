package sink

import "testing"

func TestConfigValidateDefaultsZeroFields(t *testing.T) {
	var c Config
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation errors for zero-value Config")
	}
	if c.MTUFallback == 0 || c.OnlineWaitMs == 0 || c.HighRatePCMHz == 0 || c.HighRateDSDHz == 0 {
		t.Fatalf("expected all fields defaulted, got %+v", c)
	}
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	c := DefaultConfig()
	c.MTUFallback = 1500
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() on a fully-populated config: %v", err)
	}
}
