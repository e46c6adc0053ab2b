package handlers

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"ai_phone_bridge/internal/config"
)

// MediaStreamPath 运营商媒体流WebSocket路径
const MediaStreamPath = "/media-stream"

// 录音留言流程的参数
const (
	recordMaxLength = 10
	recordThanks    = "Vielen Dank für Ihre Nachricht. Wir melden uns in Kürze."
	recordGreeting  = "Willkommen beim KI-Telefonassistenten. Bitte stellen Sie Ihre Frage nach dem Piepton."
)

// TwiML元素
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlConnect struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  twimlStream
}

type twimlStream struct {
	XMLName        xml.Name `xml:"Stream"`
	URL            string   `xml:"url,attr"`
	StatusCallback string   `xml:"statusCallback,attr,omitempty"`
	Parameters     []twimlParameter
}

type twimlParameter struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type twimlRecord struct {
	XMLName   xml.Name `xml:"Record"`
	MaxLength int      `xml:"maxLength,attr"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
}

// VoiceHandler 运营商来电回调，返回TwiML
type VoiceHandler struct {
	server config.ServerConfig
	call   config.CallConfig
}

// NewVoiceHandler 创建来电回调处理器
func NewVoiceHandler(cfg *config.Config) *VoiceHandler {
	return &VoiceHandler{server: cfg.Server, call: cfg.Call}
}

// Home 服务状态文本
func (h *VoiceHandler) Home(c *gin.Context) {
	c.String(http.StatusOK, "KI-Telefonassistent läuft!")
}

// Voice 来电接入：开场白、双向媒体流，媒体流结束后播放致歉语
func (h *VoiceHandler) Voice(c *gin.Context) {
	resp := twimlResponse{}
	if h.call.Greeting != "" {
		resp.Verbs = append(resp.Verbs, h.say(h.call.Greeting))
	}

	stream := twimlStream{
		URL:            h.streamURL(c),
		StatusCallback: h.call.StatusCallback,
	}
	if caller := c.Request.FormValue("From"); caller != "" {
		stream.Parameters = append(stream.Parameters, twimlParameter{Name: "callerNumber", Value: caller})
	}
	resp.Verbs = append(resp.Verbs, twimlConnect{Stream: stream})

	if h.call.Apology != "" {
		resp.Verbs = append(resp.Verbs, h.say(h.call.Apology))
	}
	h.render(c, resp)
}

// Telefon 录音留言入口
func (h *VoiceHandler) Telefon(c *gin.Context) {
	h.render(c, twimlResponse{Verbs: []any{
		twimlSay{Language: h.call.GreetingLanguage, Text: recordGreeting},
		twimlRecord{MaxLength: recordMaxLength, Action: h.baseURL(c) + "/antwort", Method: http.MethodPost},
	}})
}

// Antwort 留言结束后的致谢
func (h *VoiceHandler) Antwort(c *gin.Context) {
	h.render(c, twimlResponse{Verbs: []any{
		twimlSay{Language: h.call.GreetingLanguage, Text: recordThanks},
	}})
}

func (h *VoiceHandler) say(text string) twimlSay {
	return twimlSay{Language: h.call.GreetingLanguage, Voice: h.call.GreetingVoice, Text: text}
}

// streamURL 媒体流地址，运营商只接受wss
func (h *VoiceHandler) streamURL(c *gin.Context) string {
	return "wss://" + h.host(c) + MediaStreamPath
}

func (h *VoiceHandler) baseURL(c *gin.Context) string {
	if h.server.PublicURL != "" {
		return strings.TrimRight(h.server.PublicURL, "/")
	}
	return "https://" + c.Request.Host
}

func (h *VoiceHandler) host(c *gin.Context) string {
	if h.server.PublicURL != "" {
		if u, err := url.Parse(h.server.PublicURL); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return c.Request.Host
}

func (h *VoiceHandler) render(c *gin.Context, resp twimlResponse) {
	body, err := xml.Marshal(resp)
	if err != nil {
		c.String(http.StatusInternalServerError, "TwiML生成失败")
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", append([]byte(xml.Header), body...))
}
