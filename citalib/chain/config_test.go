package chain

import "testing"

func TestIsForkedUnconfiguredNeverActivates(t *testing.T) {
	c := &Config{}
	if c.IsV1(0) || c.IsV1(1_000_000) {
		t.Fatal("unconfigured V1 must never report activated")
	}
}

func TestIsForkedActivatesAtAndAfterBlock(t *testing.T) {
	c := &Config{V2Configured: true, V2Block: 100}
	if c.IsV2(99) {
		t.Fatal("V2 must not be active before its activation height")
	}
	if !c.IsV2(100) {
		t.Fatal("V2 must be active exactly at its activation height")
	}
	if !c.IsV2(101) {
		t.Fatal("V2 must stay active past its activation height")
	}
}

func TestIsForkedZeroHeightActivation(t *testing.T) {
	c := &Config{V3Configured: true, V3Block: 0}
	if !c.IsV3(0) {
		t.Fatal("a zero activation height configured true must be active from genesis")
	}
}

func TestVersionsAreIndependent(t *testing.T) {
	c := &Config{V1Configured: true, V1Block: 10}
	if c.IsV2(10) || c.IsV3(10) {
		t.Fatal("configuring V1 must not implicitly activate V2 or V3")
	}
	if !c.IsV1(10) {
		t.Fatal("V1 should be active at its own configured height")
	}
}
