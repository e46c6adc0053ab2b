// Package utils 提供抓包文件中RTP语音的读取
package utils

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"
)

// PayloadTypePCMU G.711 μ-law的RTP负载类型
const PayloadTypePCMU = 0

const (
	rtpVersion  = 2
	pcapngMagic = 0x0A0D0D0A
)

// ErrNotRTP UDP负载不是RTP包
var ErrNotRTP = errors.New("不是RTP包")

// PCAPReader 用于读取pcap或pcapng抓包文件
type PCAPReader struct {
	filename string
	file     *os.File
	source   *gopacket.PacketSource
}

// NewPCAPReader 打开抓包文件，自动识别pcap与pcapng格式
func NewPCAPReader(filename string) (*PCAPReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("打开PCAP文件失败: %w", err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("读取PCAP文件头失败: %w", err)
	}

	var source *gopacket.PacketSource
	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("解析pcapng文件失败: %w", err)
		}
		source = gopacket.NewPacketSource(ng, ng.LinkType())
	} else {
		r, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("解析PCAP文件失败: %w", err)
		}
		source = gopacket.NewPacketSource(r, r.LinkType())
	}

	return &PCAPReader{filename: filename, file: f, source: source}, nil
}

// Close 关闭PCAP读取器
func (r *PCAPReader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// ReadRTP 读取文件中全部UDP承载的RTP包，按抓包顺序返回
func (r *PCAPReader) ReadRTP() ([]*rtp.Packet, error) {
	var packets []*rtp.Packet
	for {
		packet, err := r.source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return packets, fmt.Errorf("读取数据包失败: %w", err)
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		pkt, err := ParseRTP(udp.Payload)
		if err != nil {
			continue
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// ParseRTP 解析一个RTP包，CSRC列表、扩展头与填充由rtp.Packet处理
func ParseRTP(data []byte) (*rtp.Packet, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRTP, err)
	}
	if pkt.Version != rtpVersion {
		return nil, fmt.Errorf("%w: 版本%d", ErrNotRTP, pkt.Version)
	}
	return pkt, nil
}

// PCMUPayloads 取第一个PCMU流的全部负载。ssrc为0时自动选择。
func PCMUPayloads(packets []*rtp.Packet, ssrc uint32) [][]byte {
	var out [][]byte
	for _, p := range packets {
		if p.PayloadType != PayloadTypePCMU || len(p.Payload) == 0 {
			continue
		}
		if ssrc == 0 {
			ssrc = p.SSRC
		}
		if p.SSRC == ssrc {
			out = append(out, p.Payload)
		}
	}
	return out
}
