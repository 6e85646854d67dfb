package main

import (
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/dylandreimerink/gobpfld/ebpf"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawFrame returns a frame of size bytes with the given EtherType bytes at offset 12 and a non-zero payload.
func rawFrame(size int, proto ...byte) []byte {
	frame := make([]byte, size)
	for i := range frame {
		frame[i] = byte(i*7 + 1)
	}
	if size > EFEtherType.offset {
		copy(frame[EFEtherType.offset:], proto)
	}

	return frame
}

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()

	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, l...)
	require.NoError(t, err)

	return buf.Bytes()
}

func ethernet(proto layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
		DstMAC:       net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		EthernetType: proto,
	}
}

type classifyCase struct {
	name     string
	frame    []byte
	expected Verdict
}

func classifyCases(t *testing.T) []classifyCase {
	return []classifyCase{
		{
			name:     "14 byte EtherCAT header",
			frame:    rawFrame(14, 0x88, 0xA4),
			expected: Admit,
		},
		{
			name:     "14 byte IPv4 header",
			frame:    rawFrame(14, 0x08, 0x00),
			expected: Discard,
		},
		{
			name:     "swapped EtherCAT bytes",
			frame:    rawFrame(14, 0xA4, 0x88),
			expected: Discard,
		},
		{
			name:     "60 byte EtherCAT frame with payload",
			frame:    rawFrame(60, 0x88, 0xA4),
			expected: Admit,
		},
		{
			name:     "60 byte frame, EtherCAT EtherType in payload only",
			frame:    append(rawFrame(14, 0x86, 0xDD), rawFrame(46, 0x88, 0xA4)...),
			expected: Discard,
		},
		{
			name: "Eth -> EtherCAT datagram",
			frame: serialize(t,
				ethernet(EtherTypeEtherCAT),
				// EtherCAT header: length 12, type 1, followed by a BRD datagram
				gopacket.Payload{0x0C, 0x10, 0x07, 0x00, 0x00, 0x00, 0x30, 0x01, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00},
			),
			expected: Admit,
		},
		{
			name: "Eth -> IPv4",
			frame: serialize(t,
				ethernet(layers.EthernetTypeIPv4),
				&layers.IPv4{
					Version:  4,
					IHL:      5,
					SrcIP:    net.IPv4(11, 12, 13, 14),
					DstIP:    net.IPv4(21, 22, 23, 24),
					Protocol: layers.IPProtocolUDP,
				},
				gopacket.Payload{0xDE, 0xAD, 0xBE, 0xEF},
			),
			expected: Discard,
		},
		{
			name:     "Eth -> ARP",
			frame:    serialize(t, ethernet(layers.EthernetTypeARP), gopacket.Payload(make([]byte, 28))),
			expected: Discard,
		},
		{
			name: "Eth -> 802.1Q -> EtherCAT",
			frame: serialize(t,
				ethernet(layers.EthernetTypeDot1Q),
				&layers.Dot1Q{
					VLANIdentifier: 12,
					Type:           EtherTypeEtherCAT,
				},
				gopacket.Payload{0x0C, 0x10},
			),
			expected: Discard,
		},
	}
}

func TestClassify(t *testing.T) {
	cls := NewClassifier()

	for _, tc := range classifyCases(t) {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cls.Classify(tc.frame))
		})
	}
}

func TestClassifyShortFrames(t *testing.T) {
	cls := NewClassifier()

	for size := 0; size < EthHeaderLen; size++ {
		// Even if the frame starts with what looks like an EtherType at offset 12
		frame := rawFrame(size, 0x08, 0x00)
		assert.Equal(t, Admit, cls.Classify(frame), "size %d", size)
	}

	assert.Equal(t, Admit, cls.Classify(nil))
	assert.Equal(t, Admit, cls.Classify(rawFrame(13)), "one byte short")
}

func TestClassifyBoundsFromSlice(t *testing.T) {
	cls := NewClassifier()

	// The buffer holds an EtherCAT header, but the frame ends before the EtherType
	buf := rawFrame(60, 0x88, 0xA4)
	assert.Equal(t, Admit, cls.Classify(buf[:13]))

	// The frame end is the only bound, capacity beyond it is never consulted
	buf = rawFrame(60, 0x08, 0x00)
	assert.Equal(t, Discard, cls.Classify(buf[:14]))
	assert.Equal(t, Admit, cls.Classify(buf[:12]))
}

func TestClassifyIsDeterministic(t *testing.T) {
	cls := NewClassifier()

	for _, tc := range classifyCases(t) {
		before := append([]byte(nil), tc.frame...)

		first := cls.Classify(tc.frame)
		for i := 0; i < 10; i++ {
			require.Equal(t, first, cls.Classify(tc.frame), tc.name)
		}

		assert.Equal(t, before, tc.frame, "%s: frame modified", tc.name)
	}
}

func TestClassifyEveryEtherType(t *testing.T) {
	cls := NewClassifier()
	frame := rawFrame(14)

	for proto := 0; proto <= 0xFFFF; proto++ {
		frame[12], frame[13] = byte(proto>>8), byte(proto)

		expected := Discard
		if proto == 0x88A4 {
			expected = Admit
		}

		if got := cls.Classify(frame); got != expected {
			t.Fatalf("ethertype 0x%04X: expected '%s', got '%s'", proto, expected, got)
		}
	}
}

func TestClassifyOtherEtherType(t *testing.T) {
	cls := Classifier{EtherType: layers.EthernetTypeLinkLayerDiscovery}

	assert.Equal(t, Admit, cls.Classify(serialize(t, ethernet(layers.EthernetTypeLinkLayerDiscovery), gopacket.Payload(make([]byte, 46)))))
	assert.Equal(t, Discard, cls.Classify(rawFrame(60, 0x88, 0xA4)))
	assert.Equal(t, Admit, cls.Classify(rawFrame(10)))
}

func TestClassifierAssemble(t *testing.T) {
	asm := NewClassifier().Assemble()

	assert.Contains(t, asm, "if r3 > r2 goto "+labelShortFrame)
	assert.Contains(t, asm, "r4 = *(u16 *)(r1 + 12)")
	assert.NotContains(t, asm, "call", "classifier must not call helpers or functions")

	inst, err := NewClassifier().Compile()
	require.NoError(t, err)

	// 2 context loads, bounds check (3), ethertype load and compare (2), 3 verdicts (2 each)
	assert.LessOrEqual(t, len(inst), 13)

	_, err = ebpf.Encode(inst)
	require.NoError(t, err)
}

func TestClassifierAssembleNetworkOrder(t *testing.T) {
	asm := NewClassifier().Assemble()

	assert.Contains(t, asm, "if r4 != "+strconv.Itoa(int(ebpf.HtonU16(0x88A4)))+" goto "+labelMismatch)
	assert.True(t, strings.HasPrefix(asm, "# Classifier ethertype="))
}
