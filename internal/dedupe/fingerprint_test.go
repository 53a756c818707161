package dedupe

import "testing"

func ipv4Header(proto byte, srcPort, dstPort uint16, id uint16) []byte {
	p := make([]byte, 24)
	p[0] = 0x45
	p[4] = byte(id >> 8)
	p[5] = byte(id)
	p[9] = proto
	p[12], p[13], p[14], p[15] = 10, 0, 0, 1
	p[16], p[17], p[18], p[19] = 10, 0, 0, 2
	p[20] = byte(srcPort >> 8)
	p[21] = byte(srcPort)
	p[22] = byte(dstPort >> 8)
	p[23] = byte(dstPort)
	return p
}

func TestFingerprint_SameTCPFlowMatches(t *testing.T) {
	t.Parallel()

	a := ipv4Header(6, 1000, 80, 0)
	b := ipv4Header(6, 1000, 80, 0)
	fa, ok := Fingerprint(a)
	if !ok {
		t.Fatal("expected ok")
	}
	fb, _ := Fingerprint(b)
	if fa != fb {
		t.Fatalf("expected equal fingerprints, got %d != %d", fa, fb)
	}
}

func TestFingerprint_DifferentPortsDiffer(t *testing.T) {
	t.Parallel()

	a := ipv4Header(6, 1000, 80, 0)
	b := ipv4Header(6, 1001, 80, 0)
	fa, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	if fa == fb {
		t.Fatal("expected differing fingerprints for differing source ports")
	}
}

func TestFingerprint_NonTCPUDPUsesIPIdentification(t *testing.T) {
	t.Parallel()

	a := ipv4Header(1, 0, 0, 42)
	b := ipv4Header(1, 0, 0, 43)
	fa, ok := Fingerprint(a)
	if !ok {
		t.Fatal("expected ok")
	}
	fb, _ := Fingerprint(b)
	if fa == fb {
		t.Fatal("expected differing IP identification fields to differ")
	}
}

func TestFingerprint_IPv6TCPFlow(t *testing.T) {
	t.Parallel()

	p := make([]byte, 44)
	p[0] = 0x60
	p[6] = 6 // TCP
	for i := 0; i < 16; i++ {
		p[8+i] = byte(i + 1)
		p[24+i] = byte(i + 100)
	}
	p[40], p[41] = 0x1f, 0x90 // src port 8080
	p[42], p[43] = 0x00, 0x50 // dst port 80

	fp, ok := Fingerprint(p)
	if !ok {
		t.Fatal("expected ok")
	}
	if fp == 0 {
		t.Fatal("expected non-zero fingerprint")
	}
}

func TestFingerprint_RejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	p := make([]byte, 20)
	p[0] = 0x00
	if _, ok := Fingerprint(p); ok {
		t.Fatal("expected rejection of unrecognized IP version")
	}
}

func TestFingerprint_RejectsTruncatedPacket(t *testing.T) {
	t.Parallel()

	if _, ok := Fingerprint([]byte{0x45, 0x00}); ok {
		t.Fatal("expected rejection of truncated packet")
	}
}
