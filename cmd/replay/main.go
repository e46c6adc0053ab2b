// replay 将抓包中的通话语音以运营商媒体流的形式回放给桥接服务
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ai_phone_bridge/internal/audio"
	"ai_phone_bridge/internal/protocol/twilio"
	"ai_phone_bridge/internal/utils"
)

type options struct {
	pcap   string
	url    string
	caller string
	ssrc   uint
	linger time.Duration
}

// replayStats 回放期间收到的桥接服务消息
type replayStats struct {
	media  atomic.Int64
	clears atomic.Int64
	marks  atomic.Int64
}

func main() {
	var opts options
	flag.StringVar(&opts.pcap, "pcap", "", "包含PCMU语音的抓包文件")
	flag.StringVar(&opts.url, "url", "ws://localhost:5050/media-stream", "桥接服务媒体流地址")
	flag.StringVar(&opts.caller, "caller", "", "模拟的来电号码")
	flag.UintVar(&opts.ssrc, "ssrc", 0, "回放的RTP流SSRC，0表示第一个PCMU流")
	flag.DurationVar(&opts.linger, "linger", 3*time.Second, "语音发送完后等待回复的时长")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if opts.pcap == "" {
		fmt.Fprintln(os.Stderr, "用法: replay -pcap call.pcap [-url ws://host/media-stream] [-caller +49...]")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("回放失败", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	frames, err := loadFrames(opts.pcap, uint32(opts.ssrc))
	if err != nil {
		return err
	}
	logger.Info("已读取抓包语音", "file", opts.pcap, "frames", len(frames),
		"duration", time.Duration(len(frames))*audio.FrameDuration)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.url, nil)
	if err != nil {
		return fmt.Errorf("连接桥接服务失败: %w", err)
	}
	defer conn.Close()

	stats := &replayStats{}
	readDone := make(chan struct{})
	go readReplies(conn, stats, logger, readDone)

	streamSid := "MZ" + strings.ReplaceAll(uuid.NewString(), "-", "")
	callSid := "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := stream(ctx, conn, streamSid, callSid, opts.caller, frames); err != nil {
		return err
	}

	closed := false
	select {
	case <-ctx.Done():
	case <-readDone:
		closed = true
		logger.Warn("桥接服务提前关闭了连接")
	case <-time.After(opts.linger):
	}

	if !closed {
		stop, err := twilio.EncodeStop(streamSid, callSid)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, stop); err != nil {
			return fmt.Errorf("发送stop失败: %w", err)
		}
		select {
		case <-readDone:
		case <-time.After(2 * time.Second):
		}
	}
	logger.Info("回放结束",
		"media_received", stats.media.Load(),
		"clears", stats.clears.Load(),
		"marks", stats.marks.Load())
	return nil
}

// loadFrames 读取抓包中的PCMU语音并切成20ms帧
func loadFrames(path string, ssrc uint32) ([][]byte, error) {
	reader, err := utils.NewPCAPReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	packets, err := reader.ReadRTP()
	if err != nil {
		return nil, err
	}
	payloads := utils.PCMUPayloads(packets, ssrc)
	if len(payloads) == 0 {
		return nil, fmt.Errorf("抓包中没有PCMU语音")
	}

	var all []byte
	for _, p := range payloads {
		all = append(all, p...)
	}
	return audio.Frames(all, audio.CarrierFrameSize), nil
}

// stream 按20ms节奏发送connected、start与全部语音帧
func stream(ctx context.Context, conn *websocket.Conn, streamSid, callSid, caller string, frames [][]byte) error {
	connected, err := twilio.EncodeConnected()
	if err != nil {
		return err
	}
	params := map[string]string{}
	if caller != "" {
		params["callerNumber"] = caller
	}
	start, err := twilio.EncodeStart(streamSid, callSid, params)
	if err != nil {
		return err
	}
	for _, msg := range [][]byte{connected, start} {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return fmt.Errorf("发送媒体流开始事件失败: %w", err)
		}
	}

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()
	for i, frame := range frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		msg, err := twilio.EncodeMedia(streamSid, i+1, int64(i)*audio.FrameDuration.Milliseconds(), frame)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return fmt.Errorf("发送语音帧失败: %w", err)
		}
	}
	return nil
}

// readReplies 统计桥接服务回送的消息，连接关闭时关闭done
func readReplies(conn *websocket.Conn, stats *replayStats, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("桥接服务连接异常关闭", "error", err)
			}
			return
		}

		var msg twilio.OutboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("无法解析桥接服务消息", "error", err)
			continue
		}
		switch msg.Event {
		case "media":
			stats.media.Add(1)
		case "clear":
			stats.clears.Add(1)
			logger.Info("收到clear，助手被打断")
		case "mark":
			stats.marks.Add(1)
			if msg.Mark != nil {
				logger.Info("收到mark", "name", msg.Mark.Name)
			}
		}
	}
}
