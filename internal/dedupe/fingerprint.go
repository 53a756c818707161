// Package dedupe implements the Controller-side first-arrival deduplication
// gate (spec.md §4.10): a fixed-size open-addressed flow table keyed by a
// fast non-cryptographic hash over stable packet header bytes, grounded in
// src/dedupe/dedupe.c's hash_packet/flow_check_and_add.
package dedupe

import (
	"encoding/binary"
	"hash/fnv"
)

// MaxFingerprintBytes bounds how many header bytes are hashed, matching the
// original C's "first 64 bytes" cap.
const MaxFingerprintBytes = 64

// Fingerprint computes a stable, cheap identifier for packet (the IP header
// and, where present, the transport-layer port/identifying-sequence bytes),
// hashed with FNV-1a over at most the first 64 bytes — matching
// src/dedupe/dedupe.c's hash_packet exactly (offset basis 0x811c9dc5, prime
// 0x01000193). Payload bytes are never touched. Byte ranges are pinned per
// DESIGN.md's resolution of the spec's dedup fingerprint Open Question:
//
//   - IPv4 TCP/UDP:   src(4) dst(4) proto(1) src_port(2) dst_port(2)
//   - IPv4 other:     src(4) dst(4) proto(1) ip_id(2) ip_id(2)
//   - IPv6 TCP/UDP:   src(16) dst(16) next_hdr(1) src_port(2) dst_port(2)
//   - IPv6 other:     src(16) dst(16) next_hdr(1) flow_label(3) flow_label(3)
func Fingerprint(packet []byte) (uint32, bool) {
	bytes := extractHeaderBytes(packet)
	if bytes == nil {
		return 0, false
	}
	return fnv1a(bytes), true
}

func fnv1a(data []byte) uint32 {
	h := fnv.New32a()
	n := len(data)
	if n > MaxFingerprintBytes {
		n = MaxFingerprintBytes
	}
	_, _ = h.Write(data[:n])
	return h.Sum32()
}

func extractHeaderBytes(packet []byte) []byte {
	if len(packet) < 1 {
		return nil
	}
	version := packet[0] >> 4
	switch version {
	case 4:
		return extractIPv4(packet)
	case 6:
		return extractIPv6(packet)
	default:
		return nil
	}
}

func extractIPv4(packet []byte) []byte {
	if len(packet) < 20 {
		return nil
	}
	ihl := int(packet[0]&0x0f) * 4
	if ihl < 20 || len(packet) < ihl {
		return nil
	}
	proto := packet[9]
	src := packet[12:16]
	dst := packet[16:20]

	out := make([]byte, 0, 13)
	out = append(out, src...)
	out = append(out, dst...)
	out = append(out, proto)

	if (proto == 6 || proto == 17) && len(packet) >= ihl+4 {
		// TCP/UDP: source + destination port, both at a fixed offset
		// immediately after the IP header.
		out = append(out, packet[ihl:ihl+4]...)
	} else {
		// No transport ports to key on; the IPv4 identification field
		// is the "identifying sequence" the spec allows as a substitute.
		idField := packet[4:6]
		out = append(out, idField...)
		out = append(out, idField...)
	}
	return out
}

func extractIPv6(packet []byte) []byte {
	const ipv6HeaderLen = 40
	if len(packet) < ipv6HeaderLen {
		return nil
	}
	nextHeader := packet[6]
	src := packet[8:24]
	dst := packet[24:40]

	out := make([]byte, 0, 37)
	out = append(out, src...)
	out = append(out, dst...)
	out = append(out, nextHeader)

	if (nextHeader == 6 || nextHeader == 17) && len(packet) >= ipv6HeaderLen+4 {
		out = append(out, packet[ipv6HeaderLen:ipv6HeaderLen+4]...)
	} else {
		flowLabel := make([]byte, 4)
		binary.BigEndian.PutUint32(flowLabel, uint32(packet[1]&0x0f)<<16|uint32(packet[2])<<8|uint32(packet[3]))
		out = append(out, flowLabel[1:]...)
		out = append(out, flowLabel[1:]...)
	}
	return out
}
