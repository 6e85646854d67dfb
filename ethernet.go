package main

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// EthField descibes the properties of a Ethernet header field
type EthField struct {
	offset int
	size   int
}

var (
	EFDstMAC = EthField{
		offset: 0,
		size:   6,
	}
	EFSrcMAC = EthField{
		offset: EFDstMAC.offset + EFDstMAC.size,
		size:   6,
	}
	EFEtherType = EthField{
		offset: EFSrcMAC.offset + EFSrcMAC.size,
		size:   2,
	}
)

// EthHeaderLen is sizeof(ethhdr), the minimum amount of data a frame must hold before any header field may be read.
const EthHeaderLen = 14

// EtherTypeEtherCAT identifies EtherCAT frames (IEC 61158).
const EtherTypeEtherCAT layers.EthernetType = 0x88A4

// etherType reads the EtherType of frame in host byte order. The second return value is false if frame is too
// short to contain a full Ethernet header, in which case no byte of the frame has been read.
func etherType(frame []byte) (uint16, bool) {
	if len(frame) < EthHeaderLen {
		return 0, false
	}

	return binary.BigEndian.Uint16(frame[EFEtherType.offset : EFEtherType.offset+EFEtherType.size]), true
}
