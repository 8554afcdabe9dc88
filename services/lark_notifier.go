package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"skzb-service/logger"
)

// LarkNotifier 飞书机器人通知器
type LarkNotifier struct {
	webhookURL string
	client     *http.Client
	enabled    bool
	now        func() time.Time
	log        *logger.Logger
}

// NewLarkNotifier 创建飞书通知器，webhookURL 为空时所有通知为空操作
func NewLarkNotifier(webhookURL string) *LarkNotifier {
	n := &LarkNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		enabled:    webhookURL != "",
		now:        time.Now,
		log:        logger.New("LarkNotifier"),
	}
	if n.enabled {
		n.log.Printf("Initialized with webhook")
	} else {
		n.log.Printf("Disabled (no webhook URL)")
	}
	return n
}

// Enabled 是否配置了 webhook
func (n *LarkNotifier) Enabled() bool {
	return n.enabled
}

// LarkMessage 飞书消息结构
type LarkMessage struct {
	MsgType string      `json:"msg_type"`
	Content interface{} `json:"content"`
}

// LarkTextContent 文本消息内容
type LarkTextContent struct {
	Text string `json:"text"`
}

// LarkPostContent 富文本消息内容
type LarkPostContent struct {
	Post LarkPost `json:"post"`
}

type LarkPost struct {
	ZhCn LarkPostLang `json:"zh_cn"`
}

type LarkPostLang struct {
	Title   string          `json:"title"`
	Content [][]LarkElement `json:"content"`
}

type LarkElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text,omitempty"`
	Href string `json:"href,omitempty"`
}

// SendText 发送文本消息
func (n *LarkNotifier) SendText(text string) error {
	if !n.enabled {
		return nil
	}
	return n.send(LarkMessage{
		MsgType: "text",
		Content: LarkTextContent{Text: text},
	})
}

// SendRichText 发送富文本消息
func (n *LarkNotifier) SendRichText(title string, content [][]LarkElement) error {
	if !n.enabled {
		return nil
	}
	return n.send(LarkMessage{
		MsgType: "post",
		Content: LarkPostContent{
			Post: LarkPost{
				ZhCn: LarkPostLang{Title: title, Content: content},
			},
		},
	})
}

func (n *LarkNotifier) send(message LarkMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

func (n *LarkNotifier) lines(texts ...string) [][]LarkElement {
	content := make([][]LarkElement, 0, len(texts)+1)
	for _, t := range texts {
		content = append(content, []LarkElement{{Tag: "text", Text: t + "\n"}})
	}
	content = append(content, []LarkElement{
		{Tag: "text", Text: fmt.Sprintf("时间: %s", n.now().Format(UpdateTimeLayout))},
	})
	return content
}

// NotifyServiceStart 通知服务启动
func (n *LarkNotifier) NotifyServiceStart(version, port, source string) error {
	content := n.lines(
		"🚀 服务启动",
		"版本: "+version,
		"端口: "+port,
	)
	// 数据源放在时间之前，渲染为链接
	timeRow := content[len(content)-1]
	content = append(content[:len(content)-1], []LarkElement{
		{Tag: "text", Text: "数据源: "},
		{Tag: "a", Text: source, Href: source},
		{Tag: "text", Text: "\n"},
	}, timeRow)
	return n.SendRichText("SKZB Service Started", content)
}

// NotifyServiceStop 通知服务停止
func (n *LarkNotifier) NotifyServiceStop() error {
	return n.SendText(fmt.Sprintf("🛑 SKZB服务停止 (%s)", n.now().Format(UpdateTimeLayout)))
}

// NotifyRefreshFailed 通知数据刷新失败（仅在由成功转为失败时发送）
func (n *LarkNotifier) NotifyRefreshFailed(err error) error {
	return n.SendRichText("Refresh Failed", n.lines(
		"❌ 比赛数据刷新失败，继续提供旧数据",
		"原因: "+err.Error(),
	))
}

// NotifyRefreshRecovered 通知数据刷新恢复
func (n *LarkNotifier) NotifyRefreshRecovered(total int) error {
	return n.SendRichText("Refresh Recovered", n.lines(
		"✅ 比赛数据刷新恢复",
		fmt.Sprintf("比赛数: %d", total),
	))
}

// NotifyError 通知错误
func (n *LarkNotifier) NotifyError(component, message string) error {
	return n.SendRichText("Error Alert", n.lines(
		"❌ 错误",
		"组件: "+component,
		"消息: "+message,
	))
}
