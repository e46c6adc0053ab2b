package utils

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rtpBytes(t *testing.T, pt uint8, seq uint16, ssrc uint32, payload []byte) []byte {
	t.Helper()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			PayloadType:    pt,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 160,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	data, err := pkt.Marshal()
	require.NoError(t, err)
	return data
}

func udpPacket(t *testing.T, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
		DstMAC:       net.HardwareAddr{0x00, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 10000, DstPort: 20000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writePCAP(t *testing.T, payloads ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Unix(1700000000, 0)
	for i, p := range payloads {
		data := udpPacket(t, p)
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * 20 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return path
}

func TestReadRTP(t *testing.T) {
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = byte(i)
	}
	path := writePCAP(t,
		rtpBytes(t, PayloadTypePCMU, 1, 0xAABB, frame),
		[]byte("not rtp"),
		rtpBytes(t, 8, 1, 0xCCDD, frame), // PCMA
		rtpBytes(t, PayloadTypePCMU, 2, 0xAABB, frame),
		rtpBytes(t, PayloadTypePCMU, 1, 0xEEFF, frame),
	)

	r, err := NewPCAPReader(path)
	require.NoError(t, err)
	defer r.Close()

	packets, err := r.ReadRTP()
	require.NoError(t, err)
	require.Len(t, packets, 4)
	assert.Equal(t, uint16(1), packets[0].SequenceNumber)
	assert.Equal(t, uint32(0xAABB), packets[0].SSRC)
	assert.Equal(t, frame, packets[0].Payload)

	payloads := PCMUPayloads(packets, 0)
	assert.Len(t, payloads, 2)
	assert.Len(t, PCMUPayloads(packets, 0xEEFF), 1)
}

func TestParseRTP(t *testing.T) {
	_, err := ParseRTP([]byte{0x80, 0x00})
	assert.ErrorIs(t, err, ErrNotRTP)

	bad := rtpBytes(t, 0, 1, 1, []byte{1, 2, 3})
	bad[0] = 1 << 6
	_, err = ParseRTP(bad)
	assert.ErrorIs(t, err, ErrNotRTP)

	// 一个CSRC、扩展头与2字节填充
	b := []byte{0x80 | 0x20 | 0x10 | 0x01, 0x80}
	b = binary.BigEndian.AppendUint16(b, 7)
	b = binary.BigEndian.AppendUint32(b, 1120)
	b = binary.BigEndian.AppendUint32(b, 42)
	b = append(b, 0, 0, 0, 9)       // CSRC
	b = append(b, 0x12, 0x34, 0, 1) // 扩展头，长度1
	b = append(b, 1, 2, 3, 4)       // 扩展数据
	b = append(b, 0x11, 0x22, 0x33, 0, 2)
	pkt, err := ParseRTP(b)
	require.NoError(t, err)
	assert.True(t, pkt.Marker)
	assert.Equal(t, uint16(7), pkt.SequenceNumber)
	assert.Equal(t, uint32(42), pkt.SSRC)
	assert.Equal(t, []uint32{9}, pkt.CSRC)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, pkt.Payload)
}

func TestNewPCAPReaderErrors(t *testing.T) {
	_, err := NewPCAPReader(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.pcap")
	require.NoError(t, os.WriteFile(path, []byte("garbage data"), 0o644))
	_, err = NewPCAPReader(path)
	assert.Error(t, err)
}
